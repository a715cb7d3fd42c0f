// Package browser is a headless Chrome engine built on chromedp. The browser
// process starts lazily on first use and stays open until Close, so a login
// performed in one step is visible to the next.
//
// Handle implements session.CookieHandle through the DevTools network
// domain.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/session"
)

// ErrClosed is returned by calls on a closed Handle.
var ErrClosed = errors.New("browser: handle closed")

// Options configures a Handle.
type Options struct {
	// Name identifies the handle in logs and captured sessions.
	Name string
	// Headless runs Chrome without a window. Defaults to true.
	Headless bool
	// NoSandbox disables the Chrome sandbox, required in most containers.
	NoSandbox bool
	// ExecPath overrides the Chrome binary.
	ExecPath string
	// Timeout bounds a single Run call. Defaults to 60s.
	Timeout time.Duration
	// AllocatorOptions are appended to chromedp.DefaultExecAllocatorOptions.
	AllocatorOptions []chromedp.ExecAllocatorOption
}

// Handle owns one Chrome instance and its first tab.
type Handle struct {
	opts Options

	mu            sync.Mutex
	closed        bool
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

var _ session.CookieHandle = (*Handle)(nil)

// New creates a Handle. Chrome is not started until the first Run.
func New(optFns ...func(o *Options)) *Handle {
	opts := Options{
		Name:     string(core.EngineBrowser),
		Headless: true,
		Timeout:  60 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Handle{opts: opts}
}

// String returns the handle name.
func (h *Handle) String() string { return h.opts.Name }

func (h *Handle) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", h.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if h.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if h.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(h.opts.ExecPath))
	}
	return append(opts, h.opts.AllocatorOptions...)
}

// Start launches Chrome if it is not already running.
func (h *Handle) Start() error {
	_, err := h.browser()
	return err
}

func (h *Handle) browser() (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	if h.browserCtx != nil {
		select {
		case <-h.browserCtx.Done():
			h.cleanup()
		default:
			return h.browserCtx, nil
		}
	}

	h.allocCtx, h.allocCancel = chromedp.NewExecAllocator(context.Background(), h.allocatorOptions()...)
	h.browserCtx, h.browserCancel = chromedp.NewContext(h.allocCtx)

	if err := chromedp.Run(h.browserCtx); err != nil {
		h.cleanup()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	return h.browserCtx, nil
}

func (h *Handle) cleanup() {
	if h.browserCancel != nil {
		h.browserCancel()
	}
	if h.allocCancel != nil {
		h.allocCancel()
	}
	h.browserCtx = nil
	h.allocCtx = nil
	h.browserCancel = nil
	h.allocCancel = nil
}

// Run executes chromedp actions in the browser tab. Cancelling ctx aborts
// the actions without closing the browser.
func (h *Handle) Run(ctx context.Context, actions ...chromedp.Action) error {
	browserCtx, err := h.browser()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(browserCtx, h.opts.Timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate opens url and waits for the body to be ready.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	return h.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Text returns the visible text of the first element matching selector.
func (h *Handle) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := h.Run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Click clicks the first visible element matching selector.
func (h *Handle) Click(ctx context.Context, selector string) error {
	return h.Run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// SendKeys types text into the element matching selector.
func (h *Handle) SendKeys(ctx context.Context, selector, text string) error {
	return h.Run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery, chromedp.NodeVisible))
}

// Location returns the URL of the current page.
func (h *Handle) Location(ctx context.Context) (string, error) {
	var loc string
	if err := h.Run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Close shuts Chrome down. Further calls return ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanup()
	h.closed = true
	return nil
}
