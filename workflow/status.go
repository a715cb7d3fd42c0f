package workflow

import "github.com/hupe1980/enginebridge/core"

// Status summarizes step outcomes of a workflow.
type Status struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Status is a pure function of the current step states. SuccessRate is the
// percentage of successful steps and 0 for an empty workflow.
func (w *Workflow) Status() Status {
	steps := w.Steps()
	st := Status{Total: len(steps)}
	for _, s := range steps {
		switch s.Status() {
		case core.StatusSuccess:
			st.Completed++
		case core.StatusFailed:
			st.Failed++
		}
	}
	if st.Total > 0 {
		st.SuccessRate = float64(st.Completed) / float64(st.Total) * 100
	}
	return st
}

// Details returns StepDetails for every step in order.
func (w *Workflow) Details() []StepDetails {
	steps := w.Steps()
	out := make([]StepDetails, len(steps))
	for i, s := range steps {
		out[i] = s.Details()
	}
	return out
}
