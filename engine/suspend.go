package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/enginebridge/backoff"
	"github.com/hupe1980/enginebridge/core"
)

// suspender is the only difference between synchronous and asynchronous
// participation of a step: how the executor waits on an action, a session
// injection and a retry delay. The per-step algorithm is written once against
// this interface.
type suspender interface {
	call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error)
	wait(ctx context.Context, d time.Duration) error
}

// blocking runs calls on the executing goroutine and sleeps through retry
// delays without observing cancellation.
type blocking struct {
	timer backoff.Timer
}

func (b blocking) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	return fn(ctx)
}

func (b blocking) wait(_ context.Context, d time.Duration) error {
	<-b.timer.After(d)
	return nil
}

// cooperative awaits calls and delays, giving up as soon as the run context
// is cancelled. An abandoned call keeps running in its goroutine until the
// engine returns; its result is discarded.
type cooperative struct {
	timer backoff.Timer
}

func (c cooperative) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	type result struct {
		value any
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return nil, cancelled(ctx.Err())
	}
}

func (c cooperative) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-c.timer.After(d):
		return nil
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", core.ErrCancelled, err)
}

// protect converts a panicking action into an error.
func protect(action core.Action) func(ctx context.Context, handle core.EngineHandle) (any, error) {
	return func(ctx context.Context, handle core.EngineHandle) (result any, err error) {
		defer recoverInto(&err)
		return action(ctx, handle)
	}
}

// recoverInto turns a panic of the deferring function into *err. It must be
// deferred directly.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
