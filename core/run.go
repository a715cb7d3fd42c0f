package core

import (
	"context"
	"time"
)

// StepRecord is a persisted snapshot of one step after a run.
type StepRecord struct {
	Index        int            `json:"index"`
	Name         string         `json:"name"`
	EngineType   EngineType     `json:"engine_type"`
	Status       StepStatus     `json:"status"`
	Attempts     int            `json:"attempts"`
	StartTime    time.Time      `json:"start_time,omitempty"`
	EndTime      time.Time      `json:"end_time,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RunRecord captures the outcome of one execute call.
type RunRecord struct {
	ID         string       `json:"id"`
	Workflow   string       `json:"workflow"`
	Mode       string       `json:"mode"`
	Success    bool         `json:"success"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepRecord `json:"steps"`
}

// Duration returns the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunStore persists run history.
type RunStore interface {
	Save(ctx context.Context, rec RunRecord) error
	Get(ctx context.Context, runID string) (RunRecord, error)
	// List returns the most recent runs of a workflow, newest first. A limit
	// of zero or less returns every run.
	List(ctx context.Context, workflow string, limit int) ([]RunRecord, error)
}
