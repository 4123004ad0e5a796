package pipeline

import "sync"

// ProgressSink observes query state transitions. The node argument names the
// subtask the query is currently working on, or is empty before any node has
// started. Implementations must be cheap and non-blocking; the pipeline calls
// them synchronously on the query's goroutine.
type ProgressSink interface {
	OnTransition(queryID, node string, from, to State, progress float64)
}

// NoOpProgress discards all transitions.
type NoOpProgress struct{}

// OnTransition implements ProgressSink.
func (NoOpProgress) OnTransition(string, string, State, State, float64) {}

// Transition is one recorded state change.
type Transition struct {
	Node     string
	From     State
	To       State
	Progress float64
}

// ProgressRecorder is a ProgressSink that keeps the transition history per
// query. Intended for tests and examples.
type ProgressRecorder struct {
	mu          sync.Mutex
	transitions map[string][]Transition
}

// NewProgressRecorder constructs an empty recorder.
func NewProgressRecorder() *ProgressRecorder {
	return &ProgressRecorder{transitions: make(map[string][]Transition)}
}

// OnTransition implements ProgressSink.
func (r *ProgressRecorder) OnTransition(queryID, node string, from, to State, progress float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[queryID] = append(r.transitions[queryID], Transition{
		Node:     node,
		From:     from,
		To:       to,
		Progress: progress,
	})
}

// Transitions returns the recorded transitions for a query.
func (r *ProgressRecorder) Transitions(queryID string) []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions[queryID]...)
}

// States returns the recorded state sequence for a query.
func (r *ProgressRecorder) States(queryID string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.transitions[queryID]))
	for _, tr := range r.transitions[queryID] {
		out = append(out, tr.To)
	}
	return out
}
