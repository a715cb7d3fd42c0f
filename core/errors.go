package core

import "errors"

var (
	// ErrConfiguration reports a missing engine handle or a broken engine
	// table entry. It is always fatal and never retried.
	ErrConfiguration = errors.New("enginebridge: configuration error")

	// ErrInvalidEngineType is returned when an engine type name cannot be
	// resolved through the EngineTable.
	ErrInvalidEngineType = errors.New("enginebridge: invalid engine type")

	// ErrInvalidFailurePolicy is returned when a failure policy name is unknown.
	ErrInvalidFailurePolicy = errors.New("enginebridge: invalid failure policy")

	// ErrSessionTransfer wraps failures while extracting or injecting session state.
	ErrSessionTransfer = errors.New("enginebridge: session transfer failed")

	// ErrInjectionRejected is returned by gateways that refuse to apply a state.
	ErrInjectionRejected = errors.New("enginebridge: session injection rejected")

	// ErrAction wraps any failure raised by a step action.
	ErrAction = errors.New("enginebridge: action failed")

	// ErrCancelled marks a step interrupted by cancellation of the run context.
	ErrCancelled = errors.New("enginebridge: run cancelled")

	// ErrInvalidTransition is returned for step status changes outside the
	// transition table.
	ErrInvalidTransition = errors.New("enginebridge: invalid state transition")

	// ErrWorkflowBusy is returned when a workflow is already owned by a run.
	ErrWorkflowBusy = errors.New("enginebridge: workflow already running")

	// ErrNilAction is returned when a step is added without an action.
	ErrNilAction = errors.New("enginebridge: step action is nil")

	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("enginebridge: run not found")
)
