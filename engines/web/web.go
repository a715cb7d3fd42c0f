// Package web is a lightweight HTTP engine. A Handle is an http.Client with a
// cookie jar; pages are parsed with goquery, sanitized text comes from
// bluemonday and readable article text from go-readability.
//
// Handle implements session.CookieHandle, so cookies captured from a browser
// login can be injected before the first request.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/session"
)

// ErrStatus is returned for responses outside the 2xx range.
var ErrStatus = errors.New("web: unexpected status")

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// Options configures a Handle.
type Options struct {
	// Name identifies the handle in logs and captured sessions.
	Name string
	// BaseURL resolves relative request URLs and is the default origin of
	// injected cookies without a domain.
	BaseURL string
	// UserAgent header. Defaults to DefaultUserAgent.
	UserAgent string
	// Timeout of each request. Defaults to 30s.
	Timeout time.Duration
	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
	// Policy sanitizes page text. Defaults to bluemonday.StrictPolicy.
	Policy *bluemonday.Policy
}

// Handle is a stateful HTTP client. Safe for concurrent use.
type Handle struct {
	name      string
	base      *url.URL
	userAgent string
	client    *http.Client
	jar       *cookiejar.Jar
	policy    *bluemonday.Policy

	mu      sync.Mutex
	origins map[string]*url.URL
}

var _ session.CookieHandle = (*Handle)(nil)

// New creates a Handle.
func New(optFns ...func(o *Options)) (*Handle, error) {
	opts := Options{
		Name:      string(core.EngineWeb),
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		name:      opts.Name,
		userAgent: opts.UserAgent,
		jar:       jar,
		policy:    opts.Policy,
		origins:   make(map[string]*url.URL),
		client: &http.Client{
			Jar:       jar,
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
	}
	if h.policy == nil {
		h.policy = bluemonday.StrictPolicy()
	}

	if opts.BaseURL != "" {
		base, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("web: base url: %w", err)
		}
		h.base = base
		h.remember(base)
	}

	return h, nil
}

// String returns the handle name.
func (h *Handle) String() string { return h.name }

// Page is a fetched HTML page.
type Page struct {
	URL        *url.URL
	StatusCode int
	Body       []byte
	Doc        *goquery.Document
}

// Get fetches rawURL.
func (h *Handle) Get(ctx context.Context, rawURL string) (*Page, error) {
	return h.do(ctx, http.MethodGet, rawURL, nil, "")
}

// PostForm submits form values to rawURL.
func (h *Handle) PostForm(ctx context.Context, rawURL string, values url.Values) (*Page, error) {
	return h.do(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
}

func (h *Handle) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*Page, error) {
	u, err := h.resolve(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("web: create request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web: %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	h.remember(resp.Request.URL)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("web: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: %d", ErrStatus, method, u, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("web: parse %s: %w", u, err)
	}

	return &Page{
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode,
		Body:       data,
		Doc:        doc,
	}, nil
}

// Text returns the sanitized text of the elements matching selector, or of
// the whole body when selector is empty.
func (h *Handle) Text(p *Page, selector string) string {
	sel := p.Doc.Find("body")
	if selector != "" {
		sel = p.Doc.Find(selector)
	}
	html, err := sel.Html()
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(h.policy.Sanitize(html)), " ")
}

// Article is the readable main content of a page.
type Article struct {
	Title   string
	Excerpt string
	Text    string
}

// Article extracts the main content of p.
func (h *Handle) Article(p *Page) (*Article, error) {
	article, err := readability.FromReader(bytes.NewReader(p.Body), p.URL)
	if err != nil {
		return nil, fmt.Errorf("web: parse article: %w", err)
	}
	return &Article{
		Title:   article.Title,
		Excerpt: article.Excerpt,
		Text:    strings.TrimSpace(h.policy.Sanitize(article.TextContent)),
	}, nil
}

// Cookies returns the cookies the jar holds for every origin this handle
// has talked to. The jar only exposes names and values, so Domain is set to
// the origin host and Path to "/".
func (h *Handle) Cookies(_ context.Context) ([]session.Cookie, error) {
	h.mu.Lock()
	origins := make([]*url.URL, 0, len(h.origins))
	for _, u := range h.origins {
		origins = append(origins, u)
	}
	h.mu.Unlock()

	seen := make(map[string]bool)
	var out []session.Cookie
	for _, u := range origins {
		for _, c := range h.jar.Cookies(u) {
			key := u.Hostname() + "|" + c.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, session.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: u.Hostname(),
				Path:   "/",
				Secure: u.Scheme == "https",
			})
		}
	}
	return out, nil
}

// SetCookies stores cookies in the jar. Cookies without a domain are bound
// to BaseURL.
func (h *Handle) SetCookies(_ context.Context, cookies []session.Cookie) error {
	for _, c := range cookies {
		u, err := h.cookieURL(c)
		if err != nil {
			return err
		}
		hc := c.HTTPCookie()
		if hc.Domain != "" && strings.TrimPrefix(hc.Domain, ".") == u.Hostname() {
			// Host cookies keep working for IPs and single label hosts.
			hc.Domain = ""
		}
		h.jar.SetCookies(u, []*http.Cookie{hc})
		h.remember(u)
	}
	return nil
}

func (h *Handle) cookieURL(c session.Cookie) (*url.URL, error) {
	host := strings.TrimPrefix(c.Domain, ".")
	if host == "" {
		if h.base == nil {
			return nil, fmt.Errorf("web: cookie %q has no domain and no base url is set", c.Name)
		}
		return &url.URL{Scheme: h.base.Scheme, Host: h.base.Host, Path: "/"}, nil
	}

	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	// Keep the port of the base URL when it serves the cookie's host.
	if h.base != nil && h.base.Hostname() == host {
		return &url.URL{Scheme: h.base.Scheme, Host: h.base.Host, Path: "/"}, nil
	}
	return &url.URL{Scheme: scheme, Host: host, Path: "/"}, nil
}

func (h *Handle) resolve(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("web: parse url: %w", err)
	}
	if !u.IsAbs() {
		if h.base == nil {
			return nil, fmt.Errorf("web: relative url %q without base url", rawURL)
		}
		u = h.base.ResolveReference(u)
	}
	return u, nil
}

func (h *Handle) remember(u *url.URL) {
	origin := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.origins[origin.String()] = origin
}
