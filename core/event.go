package core

import "time"

// EventType classifies a StepEvent.
type EventType string

const (
	EventStepStarted     EventType = "step_started"
	EventStepRetrying    EventType = "step_retrying"
	EventStepSucceeded   EventType = "step_succeeded"
	EventStepFailed      EventType = "step_failed"
	EventStepSkipped     EventType = "step_skipped"
	EventSessionCaptured EventType = "session_captured"
	EventSessionInjected EventType = "session_injected"
)

// StepEvent is emitted by asynchronous runs for every observable step change.
// Events of one run are delivered in the order they occurred.
type StepEvent struct {
	RunID     string     `json:"run_id"`
	Type      EventType  `json:"type"`
	Step      string     `json:"step"`
	Index     int        `json:"index"`
	Attempt   int        `json:"attempt"`
	Status    StepStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Outcome is the terminal result of an asynchronous run.
type Outcome struct {
	RunID   string
	Success bool
	Err     error
}
