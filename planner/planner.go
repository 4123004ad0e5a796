// Package planner produces execution plans for queries. A plan binds the
// analysis description, its data requirements and the Python script to run;
// downstream stages treat it as an immutable contract.
package planner

import (
	"context"
	"fmt"

	"github.com/sergeeey/verifind/contract"
)

// Planner turns a query into an executable plan.
type Planner interface {
	Plan(ctx context.Context, qctx contract.QueryContext) (contract.PlanContract, error)
}

// PlannerError wraps failures of the planning stage. Planning failures are
// retriable at the pipeline level; a plan that parses but fails validation is
// reported with Permanent set so the pipeline does not waste a retry on it.
type PlannerError struct {
	QueryID   string
	Permanent bool
	Err       error
}

func (e *PlannerError) Error() string {
	return fmt.Sprintf("planner: query %s: %v", e.QueryID, e.Err)
}

func (e *PlannerError) Unwrap() error { return e.Err }
