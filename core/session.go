package core

import "context"

// SessionState is the authenticated state carried between engines. The
// executor stores and forwards it without inspecting it.
type SessionState any

// SessionGateway moves session state between engine handles.
//
// Contract:
//   - Extract captures the current session of a handle.
//   - InjectSync applies a state and returns once it is in effect.
//   - InjectAsync applies a state on behalf of a cooperative engine and MUST
//     return promptly once ctx is cancelled.
//   - An injection that is refused (rather than erroring) returns
//     ErrInjectionRejected.
type SessionGateway interface {
	Extract(ctx context.Context, handle EngineHandle) (SessionState, error)
	InjectSync(ctx context.Context, handle EngineHandle, state SessionState) error
	InjectAsync(ctx context.Context, handle EngineHandle, state SessionState) error
}

// NoOpGateway never captures a session and accepts every injection. Useful
// for single-engine workflows and tests.
type NoOpGateway struct{}

// Extract returns a nil state.
func (NoOpGateway) Extract(context.Context, EngineHandle) (SessionState, error) { return nil, nil }

// InjectSync accepts the state.
func (NoOpGateway) InjectSync(context.Context, EngineHandle, SessionState) error { return nil }

// InjectAsync accepts the state.
func (NoOpGateway) InjectAsync(context.Context, EngineHandle, SessionState) error { return nil }
