package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/enginebridge/core"
)

type cookieJarHandle struct {
	name    string
	mu      sync.Mutex
	cookies []Cookie
	readErr error
	block   chan struct{}
}

func (h *cookieJarHandle) String() string { return h.name }

func (h *cookieJarHandle) Cookies(context.Context) ([]Cookie, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readErr != nil {
		return nil, h.readErr
	}
	return append([]Cookie(nil), h.cookies...), nil
}

func (h *cookieJarHandle) SetCookies(ctx context.Context, cookies []Cookie) error {
	if h.block != nil {
		<-ctx.Done()
		return ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cookies = append([]Cookie(nil), cookies...)
	return nil
}

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestGateway(optFns ...func(o *Options)) *Gateway {
	return NewGateway(append([]func(o *Options){func(o *Options) {
		o.Now = func() time.Time { return fixedNow }
	}}, optFns...)...)
}

func TestGateway_ExtractAndInject(t *testing.T) {
	gw := newTestGateway()
	browser := &cookieJarHandle{name: "browser", cookies: []Cookie{
		{Name: "sid", Value: "sess-123", Domain: "shop.example.com", Path: "/"},
	}}
	web := &cookieJarHandle{name: "web"}

	state, err := gw.Extract(context.Background(), browser)
	require.NoError(t, err)
	st, ok := state.(*State)
	require.True(t, ok)
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, "browser", st.Source)
	assert.Equal(t, fixedNow, st.CapturedAt)
	assert.Equal(t, 1, st.Len())

	require.NoError(t, gw.InjectSync(context.Background(), web, state))
	got, err := web.Cookies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, browser.cookies, got)
}

func TestGateway_ExtractWithoutCookiesCapturesNothing(t *testing.T) {
	gw := newTestGateway()

	state, err := gw.Extract(context.Background(), &cookieJarHandle{name: "browser"})

	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestGateway_ExtractDropsExpiredAndForeignCookies(t *testing.T) {
	gw := newTestGateway(func(o *Options) { o.Domains = []string{"shop.example.com"} })
	h := &cookieJarHandle{name: "browser", cookies: []Cookie{
		{Name: "sid", Value: "1", Domain: ".example.com"},
		{Name: "old", Value: "2", Domain: "shop.example.com", Expires: fixedNow.Add(-time.Hour)},
		{Name: "ads", Value: "3", Domain: "tracker.net"},
		{Name: "pref", Value: "4", Domain: "shop.example.com", Expires: fixedNow.Add(time.Hour)},
	}}

	state, err := gw.Extract(context.Background(), h)
	require.NoError(t, err)

	st := state.(*State)
	names := make([]string, 0, st.Len())
	for _, c := range st.Cookies {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"sid", "pref"}, names)
}

func TestGateway_ExtractReadError(t *testing.T) {
	gw := newTestGateway()

	_, err := gw.Extract(context.Background(), &cookieJarHandle{readErr: errors.New("devtools gone")})

	assert.ErrorIs(t, err, core.ErrSessionTransfer)
	assert.ErrorContains(t, err, "devtools gone")
}

func TestGateway_UnsupportedHandle(t *testing.T) {
	gw := newTestGateway()

	_, err := gw.Extract(context.Background(), "not a handle")
	assert.ErrorIs(t, err, ErrUnsupportedHandle)

	err = gw.InjectSync(context.Background(), 42, &State{Cookies: []Cookie{{Name: "a"}}})
	assert.ErrorIs(t, err, ErrUnsupportedHandle)
}

func TestGateway_InjectRejectsEmptyState(t *testing.T) {
	gw := newTestGateway()

	err := gw.InjectSync(context.Background(), &cookieJarHandle{}, &State{ID: "s1"})
	assert.ErrorIs(t, err, core.ErrInjectionRejected)

	err = gw.InjectAsync(context.Background(), &cookieJarHandle{}, State{ID: "s2"})
	assert.ErrorIs(t, err, core.ErrInjectionRejected)
}

func TestGateway_InjectRejectsForeignState(t *testing.T) {
	gw := newTestGateway()

	err := gw.InjectSync(context.Background(), &cookieJarHandle{}, "sess-123")

	assert.ErrorIs(t, err, ErrUnsupportedState)
}

func TestGateway_InjectAsync(t *testing.T) {
	gw := newTestGateway()
	h := &cookieJarHandle{name: "web_async"}

	err := gw.InjectAsync(context.Background(), h, State{Cookies: []Cookie{{Name: "sid", Value: "x"}}})

	require.NoError(t, err)
	assert.Len(t, h.cookies, 1)
}

func TestGateway_InjectAsyncHonorsCancellation(t *testing.T) {
	gw := newTestGateway()
	h := &cookieJarHandle{name: "web_async", block: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gw.InjectAsync(ctx, h, &State{Cookies: []Cookie{{Name: "sid", Value: "x"}}})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCookie_HTTPRoundTrip(t *testing.T) {
	c := Cookie{
		Name:     "sid",
		Value:    "v",
		Domain:   "example.com",
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: "Lax",
	}

	hc := c.HTTPCookie()
	assert.Equal(t, http.SameSiteLaxMode, hc.SameSite)
	assert.True(t, hc.HttpOnly)
	assert.Equal(t, c, FromHTTPCookie(hc))
}

func TestCookie_MatchesDomain(t *testing.T) {
	tests := []struct {
		domain string
		host   string
		want   bool
	}{
		{"", "anything.org", true},
		{"example.com", "example.com", true},
		{".example.com", "shop.example.com", true},
		{"example.com", "badexample.com", false},
		{"shop.example.com", "example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Cookie{Domain: tt.domain}.MatchesDomain(tt.host), "%s vs %s", tt.domain, tt.host)
	}
}

func TestState_CloneAndLookup(t *testing.T) {
	st := &State{ID: "s", Cookies: []Cookie{{Name: "sid", Value: "1"}}}
	cp := st.Clone()
	cp.Cookies[0].Value = "2"

	c, ok := st.Cookie("sid")
	require.True(t, ok)
	assert.Equal(t, "1", c.Value)
	_, ok = st.Cookie("missing")
	assert.False(t, ok)

	var nilState *State
	assert.Nil(t, nilState.Clone())
	assert.Equal(t, 0, nilState.Len())
}
