package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/enginebridge/session"
)

func TestNew_Defaults(t *testing.T) {
	h := New()
	assert.Equal(t, "browser", h.String())
	assert.True(t, h.opts.Headless)
	assert.Equal(t, 60*time.Second, h.opts.Timeout)

	h = New(func(o *Options) {
		o.Name = "chrome-1"
		o.Headless = false
		o.NoSandbox = true
		o.ExecPath = "/usr/bin/chromium"
	})
	assert.Equal(t, "chrome-1", h.String())
	assert.Greater(t, len(h.allocatorOptions()), 3)
}

func TestHandle_ClosedHandle(t *testing.T) {
	h := New()
	require.NoError(t, h.Close())

	err := h.Navigate(context.Background(), "about:blank")
	require.ErrorIs(t, err, ErrClosed)

	_, err = h.Cookies(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestToSessionCookie(t *testing.T) {
	c := toSessionCookie(&network.Cookie{
		Name:     "sid",
		Value:    "sess-123",
		Domain:   ".example.com",
		Path:     "/",
		Expires:  1767225600.5,
		HTTPOnly: true,
		Secure:   true,
		SameSite: network.CookieSameSiteLax,
	})

	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, "sess-123", c.Value)
	assert.Equal(t, ".example.com", c.Domain)
	assert.True(t, c.HTTPOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, "Lax", c.SameSite)
	assert.Equal(t, time.Unix(1767225600, 500_000_000).UTC(), c.Expires)
}

func TestToSessionCookie_SessionCookieHasNoExpiry(t *testing.T) {
	c := toSessionCookie(&network.Cookie{Name: "sid", Value: "x", Session: true, Expires: -1})
	assert.True(t, c.Expires.IsZero())
}

func TestToCookieParam(t *testing.T) {
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	p := toCookieParam(session.Cookie{
		Name:     "sid",
		Value:    "sess-123",
		Domain:   "shop.example.com",
		Expires:  exp,
		SameSite: "strict",
		HTTPOnly: true,
	})

	assert.Equal(t, "sid", p.Name)
	assert.Equal(t, "shop.example.com", p.Domain)
	assert.Equal(t, "/", p.Path)
	assert.Equal(t, network.CookieSameSiteStrict, p.SameSite)
	assert.True(t, p.HTTPOnly)
	require.NotNil(t, p.Expires)
	assert.Equal(t, exp, time.Time(*p.Expires))

	p = toCookieParam(session.Cookie{Name: "a", Value: "b", Path: "/app"})
	assert.Equal(t, "/app", p.Path)
	assert.Nil(t, p.Expires)
	assert.Empty(t, p.SameSite)
}

func chromePath(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("chrome not installed")
	return ""
}

func TestHandle_LoginAndCookies(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	path := chromePath(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "sess-123", Path: "/"})
		fmt.Fprint(w, `<html><body><h1 id="title">Dashboard</h1></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := New(func(o *Options) {
		o.ExecPath = path
		o.NoSandbox = true
		o.Timeout = 30 * time.Second
	})
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.Navigate(ctx, srv.URL))

	text, err := h.Text(ctx, "#title")
	require.NoError(t, err)
	assert.Equal(t, "Dashboard", text)

	cookies, err := h.Cookies(ctx)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "sess-123", cookies[0].Value)
}
