package harness

import (
	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/store"
)

// OutcomeOK is the outcome of a step that succeeded.
const OutcomeOK = "ok"

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Step    int            `json:"step"` // 1-based
	Op      string         `json:"op"`
	At      int64          `json:"at"` // clock reading after the step
	Outcome string         `json:"outcome"`
	Result  map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one entry per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Events is the final collection in storage order.
	Events []doc.Object `json:"events"`

	// Changes are the change notifications seen during the run.
	Changes []store.Change `json:"changes"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Events:  []doc.Object{},
		Changes: []store.Change{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace and returns it.
func (r *Result) AddTrace(op string, at int64, outcome string, result map[string]any) TraceEvent {
	ev := TraceEvent{
		Step:    len(r.Trace) + 1,
		Op:      op,
		At:      at,
		Outcome: outcome,
		Result:  result,
	}
	r.Trace = append(r.Trace, ev)
	return ev
}
