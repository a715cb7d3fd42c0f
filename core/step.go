package core

import (
	"fmt"
	"strings"
)

// StepStatus is the lifecycle state of a workflow step.
type StepStatus string

const (
	StatusPending StepStatus = "pending"
	StatusRunning StepStatus = "running"
	StatusSuccess StepStatus = "success"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
)

// String implements fmt.Stringer.
func (s StepStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition is expected in the
// current run.
func (s StepStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// transitions is the legal step state machine. Failed→Running is the re-entry
// of a retry attempt. Returning to Pending is only possible through a reset.
var transitions = map[StepStatus][]StepStatus{
	StatusPending: {StatusRunning, StatusSkipped},
	StatusRunning: {StatusSuccess, StatusFailed},
	StatusFailed:  {StatusRunning},
}

// CanTransition reports whether from→to is allowed.
func CanTransition(from, to StepStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition for illegal changes.
func ValidateTransition(from, to StepStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// FailurePolicy controls what happens once a step's retry budget is exhausted.
type FailurePolicy string

const (
	// PolicyStop aborts the run.
	PolicyStop FailurePolicy = "stop"
	// PolicyContinue records the failure and proceeds with the next step.
	PolicyContinue FailurePolicy = "continue"
	// PolicyRetry retries within the step's budget and then behaves like PolicyStop.
	PolicyRetry FailurePolicy = "retry"
)

// String implements fmt.Stringer.
func (p FailurePolicy) String() string { return string(p) }

// Aborts reports whether an exhausted failure under this policy ends the run.
func (p FailurePolicy) Aborts() bool { return p != PolicyContinue }

// ParseFailurePolicy resolves a policy name case-insensitively. The empty
// string yields PolicyStop.
func ParseFailurePolicy(name string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "stop":
		return PolicyStop, nil
	case "continue":
		return PolicyContinue, nil
	case "retry":
		return PolicyRetry, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFailurePolicy, name)
	}
}
