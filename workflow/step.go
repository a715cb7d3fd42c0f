package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/enginebridge/core"
)

// DefaultTimeout is the advisory timeout assigned to steps without one.
const DefaultTimeout = 60 * time.Second

// StepOptions configures a step added through Workflow.AddStep.
type StepOptions struct {
	// RequiresSession injects the carried session before the action runs.
	RequiresSession bool
	// ProducesSession captures the handle's session after a successful action.
	ProducesSession bool
	// OnFailure decides what happens once the retry budget is exhausted.
	OnFailure core.FailurePolicy
	// Timeout is advisory metadata passed to the action through the context.
	Timeout time.Duration
	// RetryCount is the number of additional attempts after a failure.
	RetryCount int
	// Metadata is free-form data reported by Details.
	Metadata map[string]any
}

func defaultStepOptions() StepOptions {
	return StepOptions{
		RequiresSession: true,
		OnFailure:       core.PolicyStop,
		Timeout:         DefaultTimeout,
	}
}

// WithRetries sets the retry budget.
func WithRetries(n int) func(o *StepOptions) {
	return func(o *StepOptions) { o.RetryCount = n }
}

// WithPolicy sets the failure policy.
func WithPolicy(p core.FailurePolicy) func(o *StepOptions) {
	return func(o *StepOptions) { o.OnFailure = p }
}

// WithTimeout sets the advisory timeout.
func WithTimeout(d time.Duration) func(o *StepOptions) {
	return func(o *StepOptions) { o.Timeout = d }
}

// WithMetadata attaches step metadata.
func WithMetadata(m map[string]any) func(o *StepOptions) {
	return func(o *StepOptions) { o.Metadata = m }
}

// ProducesSession marks the step as the source of the carried session.
func ProducesSession() func(o *StepOptions) {
	return func(o *StepOptions) { o.ProducesSession = true }
}

// WithoutSession disables session injection for the step.
func WithoutSession() func(o *StepOptions) {
	return func(o *StepOptions) { o.RequiresSession = false }
}

// ErrInvalidStep is returned for malformed step options.
var ErrInvalidStep = errors.New("enginebridge: invalid step")

// Step is one unit of work bound to a single engine. Configuration fields are
// fixed once the step is added; execution state is guarded by a mutex and
// read through accessors so it can be inspected while a run is in flight.
type Step struct {
	Name            string
	EngineType      core.EngineType
	Action          core.Action
	RequiresSession bool
	ProducesSession bool
	OnFailure       core.FailurePolicy
	Timeout         time.Duration
	Metadata        map[string]any

	mu           sync.RWMutex
	retryBudget  int
	retryCount   int
	status       core.StepStatus
	startTime    time.Time
	endTime      time.Time
	errorMessage string
	result       any
	attempts     int
}

func newStep(name string, et core.EngineType, action core.Action, o StepOptions) (*Step, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidStep)
	}
	if action == nil {
		return nil, fmt.Errorf("%w: step %q", core.ErrNilAction, name)
	}
	if o.RetryCount < 0 {
		return nil, fmt.Errorf("%w: step %q: negative retry count %d", ErrInvalidStep, name, o.RetryCount)
	}
	if o.Timeout < 0 {
		return nil, fmt.Errorf("%w: step %q: negative timeout", ErrInvalidStep, name)
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.OnFailure == "" {
		o.OnFailure = core.PolicyStop
	}
	policy, err := core.ParseFailurePolicy(string(o.OnFailure))
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", name, err)
	}
	o.OnFailure = policy
	return &Step{
		Name:            name,
		EngineType:      et,
		Action:          action,
		RequiresSession: o.RequiresSession,
		ProducesSession: o.ProducesSession,
		OnFailure:       o.OnFailure,
		Timeout:         o.Timeout,
		Metadata:        o.Metadata,
		retryBudget:     o.RetryCount,
		retryCount:      o.RetryCount,
		status:          core.StatusPending,
	}, nil
}

// Status returns the current lifecycle state.
func (s *Step) Status() core.StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RetryCount returns the remaining retry budget.
func (s *Step) RetryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retryCount
}

// Attempts returns how many times the action has been started.
func (s *Step) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// StartTime returns the start of the latest attempt.
func (s *Step) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// EndTime returns the end of the latest attempt.
func (s *Step) EndTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endTime
}

// ErrorMessage returns the error of the latest failed attempt.
func (s *Step) ErrorMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorMessage
}

// Result returns the value produced by the successful attempt.
func (s *Step) Result() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Step) transitionLocked(to core.StepStatus) error {
	if err := core.ValidateTransition(s.status, to); err != nil {
		return fmt.Errorf("step %q: %w", s.Name, err)
	}
	s.status = to
	return nil
}

// Begin moves the step to Running for a new attempt and returns the attempt
// number (1-indexed).
func (s *Step) Begin(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(core.StatusRunning); err != nil {
		return 0, err
	}
	s.attempts++
	s.startTime = now
	s.endTime = time.Time{}
	s.errorMessage = ""
	return s.attempts, nil
}

// Succeed records the result of the running attempt.
func (s *Step) Succeed(now time.Time, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(core.StatusSuccess); err != nil {
		return err
	}
	s.result = result
	s.endTime = now
	return nil
}

// Fail records err on the step. A step that already failed keeps its status
// and only has its error and end time refreshed.
func (s *Step) Fail(now time.Time, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != core.StatusFailed {
		if tErr := s.transitionLocked(core.StatusFailed); tErr != nil {
			return tErr
		}
	}
	if err != nil {
		s.errorMessage = err.Error()
	}
	s.endTime = now
	return nil
}

// Reject records err on a step that could not be attempted, e.g. because
// its engine handle is missing. The status is left unchanged.
func (s *Step) Reject(now time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errorMessage = err.Error()
	}
	s.endTime = now
}

// ConsumeRetry decrements the retry budget. It returns the retry number
// (1-indexed) and false once the budget is exhausted.
func (s *Step) ConsumeRetry() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryCount <= 0 {
		return 0, false
	}
	s.retryCount--
	return s.retryBudget - s.retryCount, true
}

// Skip marks a pending step as skipped.
func (s *Step) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(core.StatusSkipped)
}

// reset restores the freshly defined state.
func (s *Step) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = core.StatusPending
	s.retryCount = s.retryBudget
	s.startTime = time.Time{}
	s.endTime = time.Time{}
	s.errorMessage = ""
	s.result = nil
	s.attempts = 0
}

// StepDetails is a read-only view of a step used for post-mortems.
type StepDetails struct {
	Name         string          `json:"name"`
	Status       core.StepStatus `json:"status"`
	EngineType   core.EngineType `json:"engine_type"`
	Duration     *time.Duration  `json:"duration,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Attempts     int             `json:"attempts"`
}

// Details reports the step's current state. Duration is nil unless both the
// start and end time of the latest attempt are known.
func (s *Step) Details() StepDetails {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := StepDetails{
		Name:         s.Name,
		Status:       s.status,
		EngineType:   s.EngineType,
		ErrorMessage: s.errorMessage,
		Metadata:     s.Metadata,
		Attempts:     s.attempts,
	}
	if !s.startTime.IsZero() && !s.endTime.IsZero() {
		dur := s.endTime.Sub(s.startTime)
		d.Duration = &dur
	}
	return d
}

func (s *Step) record(index int) core.StepRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.StepRecord{
		Index:        index,
		Name:         s.Name,
		EngineType:   s.EngineType,
		Status:       s.status,
		Attempts:     s.attempts,
		StartTime:    s.startTime,
		EndTime:      s.endTime,
		ErrorMessage: s.errorMessage,
		Metadata:     s.Metadata,
	}
}
