package planner

import (
	"context"
	"time"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/decompose"
	"github.com/sergeeey/verifind/internal/util"
)

// StaticPlanner returns a fixed script for every query, filling in the data
// requirements from the query's entities and date window. It keeps tests and
// examples hermetic: no model call, no nondeterminism beyond the plan id.
type StaticPlanner struct {
	Script      string
	Description string
	// Lookback is the length of the historical window ending at the cutoff.
	Lookback time.Duration
	// Entities overrides entity extraction from the query text when set.
	Entities []string
}

// Plan implements Planner.
func (p *StaticPlanner) Plan(ctx context.Context, qctx contract.QueryContext) (contract.PlanContract, error) {
	select {
	case <-ctx.Done():
		return contract.PlanContract{}, &PlannerError{QueryID: qctx.QueryID, Err: ctx.Err()}
	default:
	}

	entities := p.Entities
	if len(entities) == 0 {
		entities = decompose.ExtractEntities(qctx.QueryText)
	}
	lookback := p.Lookback
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	end := qctx.EffectiveCutoff()

	plan := contract.PlanContract{
		ID:          util.NewID(),
		Description: p.Description,
		Reasoning:   "static plan",
		Requirements: contract.DataRequirements{
			Entities:  entities,
			StartDate: end.Add(-lookback),
			EndDate:   end,
		},
		ScriptText: p.Script,
		CreatedAt:  time.Now().UTC(),
	}
	if err := plan.Validate(); err != nil {
		return contract.PlanContract{}, &PlannerError{QueryID: qctx.QueryID, Permanent: true, Err: err}
	}
	return plan, nil
}
