package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/workflow"
)

// CallbackType defines the lifecycle points of a run where callbacks execute.
//
// Callbacks hook into the executor without modifying its logic:
//   - BeforeStep: before every attempt of a step, after it is marked Running
//   - AfterStep: after a step succeeded
//   - OnStepError: after every failed attempt
//   - OnRetry: before the backoff wait that precedes a retry
//   - OnSessionCaptured: after a producing step replaced the session data
//   - OnRunComplete: once per run, after the last step
//
// Only BeforeStep can influence execution: its error fails the attempt as an
// action error. Errors of every other callback type are logged and ignored.
type CallbackType string

const (
	CallbackBeforeStep        CallbackType = "before_step"
	CallbackAfterStep         CallbackType = "after_step"
	CallbackOnStepError       CallbackType = "on_step_error"
	CallbackOnRetry           CallbackType = "on_retry"
	CallbackOnSessionCaptured CallbackType = "on_session_captured"
	CallbackOnRunComplete     CallbackType = "on_run_complete"
)

// CallbackContext carries the run and step a callback fires for.
type CallbackContext struct {
	// RunID identifies the run.
	RunID string

	// Workflow is the workflow being executed.
	Workflow *workflow.Workflow

	// Step is the step the callback fires for. Nil for OnRunComplete.
	Step *workflow.Step

	// Index is the position of Step in the workflow, -1 for OnRunComplete.
	Index int

	// Attempt is the 1-indexed attempt number of Step.
	Attempt int

	// Err is the failure of the attempt (OnStepError, OnRetry) or of the run
	// (OnRunComplete).
	Err error

	// Session is the captured state for OnSessionCaptured.
	Session core.SessionState

	// Success reports the run outcome for OnRunComplete.
	Success bool

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType
}

// Callback defines the interface for run lifecycle hooks.
//
// Callbacks run synchronously on the goroutine executing the run and must
// not block for long. They must not mutate the workflow.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackAfterStep,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("step %s done", cc.Step.Name)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is the registry of callbacks of an executor.
//
// Callbacks of one type execute in registration order; the first error stops
// the remaining callbacks of that type. Registration and execution are safe
// for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a message sink.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackOnStepError, func(msg string) {
//	    log.Printf("[EXECUTOR] %s", msg)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute formats the event and hands it to the sink.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	step := ""
	if callbackCtx.Step != nil {
		step = callbackCtx.Step.Name
	}
	message := fmt.Sprintf("[%s] Run: %s, Step: %s, Attempt: %d",
		c.callbackType, callbackCtx.RunID, step, callbackCtx.Attempt)
	if callbackCtx.Err != nil {
		message += ", Error: " + callbackCtx.Err.Error()
	}
	c.logger(message)
	return nil
}

// SessionValidationCallback vets every captured session before later steps
// receive it. A validation error is logged by the executor; it never fails
// the producing step.
type SessionValidationCallback struct {
	validator func(state core.SessionState) error
}

// NewSessionValidationCallback creates a new session validation callback.
func NewSessionValidationCallback(validator func(state core.SessionState) error) *SessionValidationCallback {
	return &SessionValidationCallback{
		validator: validator,
	}
}

// Type returns the callback type (always CallbackOnSessionCaptured).
func (c *SessionValidationCallback) Type() CallbackType {
	return CallbackOnSessionCaptured
}

// Execute runs the validator on the captured session.
func (c *SessionValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator == nil {
		return nil
	}
	return c.validator(callbackCtx.Session)
}
