package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/enginebridge/core"
)

// FakeHandle is a named engine handle for tests.
type FakeHandle struct {
	Name    string
	Session core.SessionState
}

// String returns the handle name.
func (h *FakeHandle) String() string { return h.Name }

// JournalGateway is a core.SessionGateway over FakeHandles. Extract returns
// the handle's Session; injections store the state on the handle. Every call
// is written to the journal as "extract:<handle>", "inject_sync:<handle>:<state>"
// or "inject_async:<handle>:<state>".
type JournalGateway struct {
	Journal *Journal

	// InjectErr, when set, fails every injection.
	InjectErr error
	// ExtractErr, when set, fails every extraction.
	ExtractErr error

	mu       sync.Mutex
	injected []core.SessionState
}

var _ core.SessionGateway = (*JournalGateway)(nil)

// Extract returns the session of a FakeHandle.
func (g *JournalGateway) Extract(_ context.Context, handle core.EngineHandle) (core.SessionState, error) {
	h := handle.(*FakeHandle)
	g.Journal.Add("extract:%s", h.Name)
	if g.ExtractErr != nil {
		return nil, g.ExtractErr
	}
	return h.Session, nil
}

// InjectSync stores state on a FakeHandle.
func (g *JournalGateway) InjectSync(_ context.Context, handle core.EngineHandle, state core.SessionState) error {
	return g.inject("inject_sync", handle, state)
}

// InjectAsync stores state on a FakeHandle.
func (g *JournalGateway) InjectAsync(ctx context.Context, handle core.EngineHandle, state core.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.inject("inject_async", handle, state)
}

func (g *JournalGateway) inject(kind string, handle core.EngineHandle, state core.SessionState) error {
	h := handle.(*FakeHandle)
	g.Journal.Add("%s:%s:%v", kind, h.Name, state)
	if g.InjectErr != nil {
		return g.InjectErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h.Session = state
	g.injected = append(g.injected, state)
	return nil
}

// Injected returns every state injected so far.
func (g *JournalGateway) Injected() []core.SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.SessionState(nil), g.injected...)
}

// MockGateway is a testify mock of core.SessionGateway.
type MockGateway struct {
	mock.Mock
}

var _ core.SessionGateway = (*MockGateway)(nil)

// Extract mocks session extraction.
func (m *MockGateway) Extract(ctx context.Context, handle core.EngineHandle) (core.SessionState, error) {
	args := m.Called(ctx, handle)
	return args.Get(0), args.Error(1)
}

// InjectSync mocks blocking injection.
func (m *MockGateway) InjectSync(ctx context.Context, handle core.EngineHandle, state core.SessionState) error {
	args := m.Called(ctx, handle, state)
	return args.Error(0)
}

// InjectAsync mocks cooperative injection.
func (m *MockGateway) InjectAsync(ctx context.Context, handle core.EngineHandle, state core.SessionState) error {
	args := m.Called(ctx, handle, state)
	return args.Error(0)
}

// Handles builds a handle registry with one FakeHandle per engine type.
func Handles(types ...core.EngineType) core.Handles {
	hs := make(core.Handles, len(types))
	for _, t := range types {
		hs[t] = &FakeHandle{Name: fmt.Sprint(t)}
	}
	return hs
}
