package browser

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/hupe1980/enginebridge/session"
)

// Cookies returns the cookies visible to the current page.
func (h *Handle) Cookies(ctx context.Context) ([]session.Cookie, error) {
	var cookies []*network.Cookie
	err := h.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, toSessionCookie(c))
	}
	return out, nil
}

// SetCookies installs cookies in the browser profile.
func (h *Handle) SetCookies(ctx context.Context, cookies []session.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, toCookieParam(c))
	}
	return h.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

func toSessionCookie(c *network.Cookie) session.Cookie {
	sc := session.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: string(c.SameSite),
	}
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		sc.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return sc
}

func toCookieParam(c session.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if p.Path == "" {
		p.Path = "/"
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		p.SameSite = network.CookieSameSiteStrict
	case "lax":
		p.SameSite = network.CookieSameSiteLax
	case "none":
		p.SameSite = network.CookieSameSiteNone
	}
	if !c.Expires.IsZero() {
		exp := cdp.TimeSinceEpoch(c.Expires)
		p.Expires = &exp
	}
	return p
}
