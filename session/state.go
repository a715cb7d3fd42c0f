package session

import (
	"net/http"
	"strings"
	"time"
)

// Cookie is an engine neutral cookie.
type Cookie struct {
	Name     string    `json:"name" yaml:"name"`
	Value    string    `json:"value" yaml:"value"`
	Domain   string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	Path     string    `json:"path,omitempty" yaml:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty" yaml:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty" yaml:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty" yaml:"http_only,omitempty"`
	SameSite string    `json:"same_site,omitempty" yaml:"same_site,omitempty"`
}

// MatchesDomain reports whether the cookie applies to host. Cookies without a
// domain match every host.
func (c Cookie) MatchesDomain(host string) bool {
	d := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	if d == "" {
		return true
	}
	host = strings.ToLower(host)
	return host == d || strings.HasSuffix(host, "."+d)
}

// Expired reports whether the cookie expired before now. Session cookies
// never expire.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

// HTTPCookie converts the cookie for net/http.
func (c Cookie) HTTPCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		hc.SameSite = http.SameSiteStrictMode
	case "lax":
		hc.SameSite = http.SameSiteLaxMode
	case "none":
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

// FromHTTPCookie converts a net/http cookie.
func FromHTTPCookie(hc *http.Cookie) Cookie {
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   hc.Domain,
		Path:     hc.Path,
		Expires:  hc.Expires,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
	}
	switch hc.SameSite {
	case http.SameSiteStrictMode:
		c.SameSite = "Strict"
	case http.SameSiteLaxMode:
		c.SameSite = "Lax"
	case http.SameSiteNoneMode:
		c.SameSite = "None"
	}
	return c
}

// State is the session captured from one engine.
type State struct {
	ID         string    `json:"id"`
	Cookies    []Cookie  `json:"cookies"`
	Source     string    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
}

// Len returns the number of cookies.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Cookies)
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Cookies = append([]Cookie(nil), s.Cookies...)
	return &c
}

// Cookie returns the first cookie called name.
func (s *State) Cookie(name string) (Cookie, bool) {
	if s == nil {
		return Cookie{}, false
	}
	for _, c := range s.Cookies {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}

// filterCookies keeps unexpired cookies that match one of domains. An empty
// domain list keeps every unexpired cookie.
func filterCookies(cookies []Cookie, domains []string, now time.Time) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Expired(now) {
			continue
		}
		if len(domains) > 0 && !matchesAny(c, domains) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesAny(c Cookie, domains []string) bool {
	for _, d := range domains {
		if c.MatchesDomain(d) {
			return true
		}
	}
	return false
}
