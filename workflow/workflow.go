package workflow

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/enginebridge/core"
)

// Workflow is a fixed, ordered sequence of steps plus the session state
// carried between them. The session is owned by the run currently executing
// the workflow and is replaced, never merged, on every capture.
type Workflow struct {
	Name        string
	Description string
	Metadata    map[string]any

	table *core.EngineTable

	mu          sync.RWMutex
	steps       []*Step
	sessionData core.SessionState
	running     atomic.Bool
}

// Define creates an empty workflow resolving engine types through the
// default engine table.
func Define(name, description string, metadata map[string]any) *Workflow {
	return DefineWithTable(core.DefaultEngineTable(), name, description, metadata)
}

// DefineWithTable creates an empty workflow bound to a custom engine table.
func DefineWithTable(table *core.EngineTable, name, description string, metadata map[string]any) *Workflow {
	if table == nil {
		table = core.DefaultEngineTable()
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Workflow{
		Name:        name,
		Description: description,
		Metadata:    metadata,
		table:       table,
	}
}

// EngineTable returns the table used to resolve the workflow's engine types.
func (w *Workflow) EngineTable() *core.EngineTable { return w.table }

// AddStep appends a step and returns it. engineType is a core.EngineType or
// a case-insensitive engine name. Defaults: RequiresSession=true,
// OnFailure=Stop, Timeout=60s, RetryCount=0.
func (w *Workflow) AddStep(name string, engineType any, action core.Action, optFns ...func(o *StepOptions)) (*Step, error) {
	et, err := w.table.Resolve(engineType)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", name, err)
	}

	opts := defaultStepOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	step, err := newStep(name, et, action, opts)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running.Load() {
		return nil, fmt.Errorf("workflow %q: %w", w.Name, core.ErrWorkflowBusy)
	}
	w.steps = append(w.steps, step)
	return step, nil
}

// MustAddStep is like AddStep but panics on error. Intended for statically
// defined workflows.
func (w *Workflow) MustAddStep(name string, engineType any, action core.Action, optFns ...func(o *StepOptions)) *Step {
	s, err := w.AddStep(name, engineType, action, optFns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Steps returns the steps in execution order. The slice is a copy; the steps
// are shared.
func (w *Workflow) Steps() []*Step {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Step, len(w.steps))
	copy(out, w.steps)
	return out
}

// Len returns the number of steps.
func (w *Workflow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.steps)
}

// SessionData returns the carried session state, or nil.
func (w *Workflow) SessionData() core.SessionState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sessionData
}

// SetSessionData replaces the carried session state. Only the run that owns
// the workflow calls this.
func (w *Workflow) SetSessionData(state core.SessionState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessionData = state
}

// Acquire claims exclusive ownership for a run. It serializes with AddStep
// and Reset, so the step list is fixed once it returns nil.
func (w *Workflow) Acquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("workflow %q: %w", w.Name, core.ErrWorkflowBusy)
	}
	return nil
}

// Release gives up ownership claimed by Acquire.
func (w *Workflow) Release() { w.running.Store(false) }

// Running reports whether a run currently owns the workflow.
func (w *Workflow) Running() bool { return w.running.Load() }

// Reset returns every step to Pending with its original retry budget, clears
// timestamps, results and errors, and drops the carried session. It is
// idempotent and fails only while a run owns the workflow.
func (w *Workflow) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running.Load() {
		return fmt.Errorf("workflow %q: %w", w.Name, core.ErrWorkflowBusy)
	}
	for _, s := range w.steps {
		s.reset()
	}
	w.sessionData = nil
	return nil
}

// Snapshot returns persisted records for every step in order.
func (w *Workflow) Snapshot() []core.StepRecord {
	steps := w.Steps()
	out := make([]core.StepRecord, len(steps))
	for i, s := range steps {
		out[i] = s.record(i)
	}
	return out
}
