package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/logging"
)

var (
	// ErrUnsupportedHandle is returned for handles that do not implement
	// CookieHandle.
	ErrUnsupportedHandle = errors.New("enginebridge: handle does not support cookies")

	// ErrUnsupportedState is returned when a state was not produced by this
	// package.
	ErrUnsupportedState = errors.New("enginebridge: unsupported session state")
)

// CookieHandle is an engine handle whose cookies can be read and replaced.
type CookieHandle interface {
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
}

// Options configures a Gateway.
type Options struct {
	// Domains limits transferred cookies to these hosts (and their
	// subdomains). Empty transfers every cookie.
	Domains []string

	// Logger provides structured logging. Defaults to NoOp logger.
	Logger logging.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Gateway is a cookie based core.SessionGateway.
type Gateway struct {
	domains []string
	logger  logging.Logger
	now     func() time.Time
}

var _ core.SessionGateway = (*Gateway)(nil)

// NewGateway creates a cookie gateway.
func NewGateway(optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{
		domains: opts.Domains,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Extract captures the cookies of handle. A handle without any matching
// cookie yields a nil state.
func (g *Gateway) Extract(ctx context.Context, handle core.EngineHandle) (core.SessionState, error) {
	ch, err := cookieHandle(handle)
	if err != nil {
		return nil, err
	}

	cookies, err := ch.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read cookies: %w", core.ErrSessionTransfer, err)
	}

	now := g.now()
	cookies = filterCookies(cookies, g.domains, now)
	if len(cookies) == 0 {
		g.logger.Debug("No cookies to capture", "source", sourceOf(handle))
		return nil, nil
	}

	state := &State{
		ID:         uuid.NewString(),
		Cookies:    cookies,
		Source:     sourceOf(handle),
		CapturedAt: now,
	}
	g.logger.Debug("Captured session", "session_id", state.ID, "source", state.Source, "cookies", len(cookies))
	return state, nil
}

// InjectSync writes state into handle and returns once the cookies are set.
func (g *Gateway) InjectSync(ctx context.Context, handle core.EngineHandle, state core.SessionState) error {
	ch, cookies, err := g.prepare(handle, state)
	if err != nil {
		return err
	}
	return g.set(ctx, ch, cookies)
}

// InjectAsync writes state into handle. It returns as soon as ctx is done,
// even if the engine has not finished applying the cookies.
func (g *Gateway) InjectAsync(ctx context.Context, handle core.EngineHandle, state core.SessionState) error {
	ch, cookies, err := g.prepare(handle, state)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- g.set(ctx, ch, cookies) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) prepare(handle core.EngineHandle, state core.SessionState) (CookieHandle, []Cookie, error) {
	ch, err := cookieHandle(handle)
	if err != nil {
		return nil, nil, err
	}

	var st *State
	switch s := state.(type) {
	case *State:
		st = s
	case State:
		st = &s
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedState, state)
	}

	cookies := filterCookies(st.Cookies, g.domains, g.now())
	if len(cookies) == 0 {
		return nil, nil, fmt.Errorf("%w: session %s has no usable cookies", core.ErrInjectionRejected, st.ID)
	}
	return ch, cookies, nil
}

func (g *Gateway) set(ctx context.Context, ch CookieHandle, cookies []Cookie) error {
	if err := ch.SetCookies(ctx, cookies); err != nil {
		return fmt.Errorf("%w: write cookies: %w", core.ErrSessionTransfer, err)
	}
	return nil
}

func cookieHandle(handle core.EngineHandle) (CookieHandle, error) {
	ch, ok := handle.(CookieHandle)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedHandle, handle)
	}
	return ch, nil
}

func sourceOf(handle core.EngineHandle) string {
	if s, ok := handle.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", handle)
}
