package core

import (
	"context"
	"time"
)

// Action is the caller supplied unit of work for a step. It receives the
// engine handle resolved for the step and signals failure by returning an
// error. The returned value is recorded as the step result.
type Action func(ctx context.Context, handle EngineHandle) (any, error)

type timeoutKey struct{}

// WithStepTimeout attaches the advisory step timeout to ctx. The executor
// never enforces it; engines and actions may honor it.
func WithStepTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, d)
}

// StepTimeout returns the advisory timeout of the step currently executing.
func StepTimeout(ctx context.Context) (time.Duration, bool) {
	d, ok := ctx.Value(timeoutKey{}).(time.Duration)
	return d, ok
}
