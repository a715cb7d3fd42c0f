package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/enginebridge/core"
)

// ScriptBuilder builds a core.Action whose outcome per call is scripted.
// Example:
//
//	act := NewScript("order").Fail(errBoom).Fail(errBoom).Succeed("ok")
//	wf.MustAddStep("order", core.EngineWeb, act.Action())
//
// Calls beyond the script repeat the last outcome; an empty script succeeds
// with a nil result.
type ScriptBuilder struct {
	name    string
	journal *Journal
	block   chan struct{}

	mu       sync.Mutex
	outcomes []outcome
	calls    int
	handles  []core.EngineHandle
}

type outcome struct {
	result any
	err    error
	panic  any
}

// NewScript creates a script for the step called name.
func NewScript(name string) *ScriptBuilder { return &ScriptBuilder{name: name} }

// Succeed appends a successful call returning result (chainable).
func (b *ScriptBuilder) Succeed(result any) *ScriptBuilder {
	b.outcomes = append(b.outcomes, outcome{result: result})
	return b
}

// Fail appends a failing call (chainable).
func (b *ScriptBuilder) Fail(err error) *ScriptBuilder {
	b.outcomes = append(b.outcomes, outcome{err: err})
	return b
}

// Panic appends a call that panics with v (chainable).
func (b *ScriptBuilder) Panic(v any) *ScriptBuilder {
	b.outcomes = append(b.outcomes, outcome{panic: v})
	return b
}

// Journal records every call as "action:<name>" (chainable).
func (b *ScriptBuilder) Journal(j *Journal) *ScriptBuilder {
	b.journal = j
	return b
}

// BlockUntilCancelled makes every call wait for ctx cancellation and fail
// with the context error (chainable).
func (b *ScriptBuilder) BlockUntilCancelled() *ScriptBuilder {
	b.block = make(chan struct{})
	return b
}

// Started is closed once the first blocking call is running. Only valid
// after BlockUntilCancelled.
func (b *ScriptBuilder) Started() <-chan struct{} { return b.block }

// Action returns the scripted action.
func (b *ScriptBuilder) Action() core.Action {
	return func(ctx context.Context, handle core.EngineHandle) (any, error) {
		b.mu.Lock()
		b.calls++
		call := b.calls
		b.handles = append(b.handles, handle)
		var o outcome
		if len(b.outcomes) > 0 {
			idx := call - 1
			if idx >= len(b.outcomes) {
				idx = len(b.outcomes) - 1
			}
			o = b.outcomes[idx]
		}
		b.mu.Unlock()

		b.journal.Add("action:%s", b.name)

		if b.block != nil {
			if call == 1 {
				close(b.block)
			}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if o.panic != nil {
			panic(o.panic)
		}
		if o.err != nil {
			return nil, fmt.Errorf("%s: %w", b.name, o.err)
		}
		return o.result, nil
	}
}

// Calls returns how many times the action ran.
func (b *ScriptBuilder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Handles returns the handles the action received, in call order.
func (b *ScriptBuilder) Handles() []core.EngineHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.EngineHandle(nil), b.handles...)
}
