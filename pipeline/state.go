package pipeline

import (
	"errors"
	"fmt"

	"github.com/sergeeey/verifind/debate"
	"github.com/sergeeey/verifind/decompose"
	"github.com/sergeeey/verifind/fetch"
	"github.com/sergeeey/verifind/gate"
	"github.com/sergeeey/verifind/planner"
	"github.com/sergeeey/verifind/sandbox"
	"github.com/sergeeey/verifind/task"
)

// State is a stage of the per-query state machine. A query advances strictly
// forward through the happy path; Failed and Cancelled are reachable from any
// non-terminal state.
type State string

const (
	StatePending   State = "pending"
	StatePlanning  State = "planning"
	StateFetching  State = "fetching"
	StateExecuting State = "executing"
	StateGating    State = "gating"
	StateDebating  State = "debating"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// stateProgress maps each state to a coarse completion fraction for progress
// reporting.
var stateProgress = map[State]float64{
	StatePending:   0.0,
	StatePlanning:  0.1,
	StateFetching:  0.3,
	StateExecuting: 0.5,
	StateGating:    0.7,
	StateDebating:  0.85,
	StateCompleted: 1.0,
	StateFailed:    1.0,
	StateCancelled: 1.0,
}

var forward = map[State]State{
	StatePending:   StatePlanning,
	StatePlanning:  StateFetching,
	StateFetching:  StateExecuting,
	StateExecuting: StateGating,
	StateGating:    StateDebating,
	StateDebating:  StateCompleted,
}

// canTransition reports whether from -> to is a legal move.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	return forward[from] == to
}

// ErrorKind is the stable classification of a query failure, derived from the
// failing stage's error type rather than its message.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindPlanner       ErrorKind = "planner"
	ErrorKindFetch         ErrorKind = "fetch"
	ErrorKindExecution     ErrorKind = "execution"
	ErrorKindGateRejection ErrorKind = "gate_rejection"
	ErrorKindDebate        ErrorKind = "debate"
	ErrorKindUnsatisfiable ErrorKind = "unsatisfiable_query"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindCancelled     ErrorKind = "cancelled"
	ErrorKindInternal      ErrorKind = "internal"
)

// classify maps a stage error to its kind.
func classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var rej *gate.Rejection
	var perr *planner.PlannerError
	var ferr *fetch.FetchError
	switch {
	case errors.Is(err, errTimeout) || errors.Is(err, sandbox.ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, errCancelled) || errors.Is(err, task.ErrCancelled):
		return ErrorKindCancelled
	case errors.As(err, &rej):
		return ErrorKindGateRejection
	case errors.Is(err, decompose.ErrUnsatisfiableQuery):
		return ErrorKindUnsatisfiable
	case errors.As(err, &perr):
		return ErrorKindPlanner
	case errors.As(err, &ferr):
		return ErrorKindFetch
	case errors.Is(err, sandbox.ErrResourceExceeded):
		return ErrorKindExecution
	case errors.Is(err, debate.ErrAllPerspectivesMalformed):
		return ErrorKindDebate
	default:
		return ErrorKindInternal
	}
}

// stageFor maps an error kind back to the state the failing stage runs
// under. Decomposed queries run every node's full chain under the coarse
// Executing state, so the kind, not the recorded state, identifies where the
// failure arose. Kinds without a dedicated stage keep the recorded state.
func stageFor(kind ErrorKind, recorded State) State {
	switch kind {
	case ErrorKindPlanner, ErrorKindUnsatisfiable:
		return StatePlanning
	case ErrorKindFetch:
		return StateFetching
	case ErrorKindExecution:
		return StateExecuting
	case ErrorKindGateRejection:
		return StateGating
	case ErrorKindDebate:
		return StateDebating
	}
	return recorded
}

// retriable reports whether a stage failure is worth one more attempt. Gate
// rejections, unsatisfiable queries, timeouts and cancellations are terminal;
// permanent planner errors carry their own flag.
func retriable(err error) bool {
	switch classify(err) {
	case ErrorKindGateRejection, ErrorKindUnsatisfiable, ErrorKindTimeout, ErrorKindCancelled:
		return false
	}
	var perr *planner.PlannerError
	if errors.As(err, &perr) && perr.Permanent {
		return false
	}
	return true
}

var (
	// errTimeout marks a query that exceeded its per-query deadline.
	errTimeout = errors.New("pipeline: query deadline exceeded")
	// errCancelled marks a query cancelled by the caller.
	errCancelled = errors.New("pipeline: query cancelled")
	// ErrUnknownQuery is returned when the query id is not tracked.
	ErrUnknownQuery = errors.New("pipeline: unknown query")
)

// StageError wraps a stage failure with the state it occurred in, so callers
// see both what failed and how far the query got.
type StageError struct {
	State State
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s (%s): %v", e.State, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
