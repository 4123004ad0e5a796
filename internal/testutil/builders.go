// Package testutil provides fluent builders for the contract types used
// across the pipeline's tests. Builders start from a valid baseline so a test
// only states what it cares about.
package testutil

import (
	"time"

	"github.com/sergeeey/verifind/contract"
)

// DefaultCutoff anchors builder dates so tests are reproducible.
var DefaultCutoff = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// PlanBuilder assembles a PlanContract.
type PlanBuilder struct {
	plan contract.PlanContract
}

// NewPlan returns a builder seeded with a valid single-entity plan.
func NewPlan() *PlanBuilder {
	return &PlanBuilder{plan: contract.PlanContract{
		ID:          "plan-test",
		Description: "test analysis",
		ScriptText:  "publish('value', 1.0)",
		Requirements: contract.DataRequirements{
			Entities:  []string{"ACME"},
			StartDate: DefaultCutoff.AddDate(0, -3, 0),
			EndDate:   DefaultCutoff,
		},
		CreatedAt: DefaultCutoff,
	}}
}

// WithID sets the plan id.
func (b *PlanBuilder) WithID(id string) *PlanBuilder {
	b.plan.ID = id
	return b
}

// WithScript sets the script text.
func (b *PlanBuilder) WithScript(script string) *PlanBuilder {
	b.plan.ScriptText = script
	return b
}

// WithEntities sets the required entities.
func (b *PlanBuilder) WithEntities(entities ...string) *PlanBuilder {
	b.plan.Requirements.Entities = entities
	return b
}

// WithRange sets the data window.
func (b *PlanBuilder) WithRange(start, end time.Time) *PlanBuilder {
	b.plan.Requirements.StartDate = start
	b.plan.Requirements.EndDate = end
	return b
}

// Build returns the assembled plan.
func (b *PlanBuilder) Build() contract.PlanContract { return b.plan }

// QueryBuilder assembles a QueryContext.
type QueryBuilder struct {
	qctx contract.QueryContext
}

// NewQuery returns a builder anchored at DefaultCutoff.
func NewQuery(text string) *QueryBuilder {
	return &QueryBuilder{qctx: contract.QueryContext{
		QueryID:       "query-test",
		QueryText:     text,
		ReferenceDate: DefaultCutoff,
		Cutoff:        DefaultCutoff,
	}}
}

// WithID sets the query id.
func (b *QueryBuilder) WithID(id string) *QueryBuilder {
	b.qctx.QueryID = id
	return b
}

// WithCutoff sets the data cutoff.
func (b *QueryBuilder) WithCutoff(cutoff time.Time) *QueryBuilder {
	b.qctx.Cutoff = cutoff
	return b
}

// WithAttribute adds a query attribute.
func (b *QueryBuilder) WithAttribute(key, value string) *QueryBuilder {
	if b.qctx.Attributes == nil {
		b.qctx.Attributes = map[string]string{}
	}
	b.qctx.Attributes[key] = value
	return b
}

// Build returns the assembled query context.
func (b *QueryBuilder) Build() contract.QueryContext { return b.qctx }

// ResultBuilder assembles an ExecutionResult.
type ResultBuilder struct {
	result contract.ExecutionResult
}

// NewResult returns a builder for a succeeded execution.
func NewResult() *ResultBuilder {
	return &ResultBuilder{result: contract.ExecutionResult{
		OutputValues: map[string]float64{"value": 1.0},
		ScriptHash:   "hash-test",
		Succeeded:    true,
	}}
}

// WithValues replaces the published values.
func (b *ResultBuilder) WithValues(values map[string]float64) *ResultBuilder {
	b.result.OutputValues = values
	return b
}

// WithHash sets the script hash.
func (b *ResultBuilder) WithHash(hash string) *ResultBuilder {
	b.result.ScriptHash = hash
	return b
}

// Failed marks the execution failed with the given error text.
func (b *ResultBuilder) Failed(errText string) *ResultBuilder {
	b.result.Succeeded = false
	b.result.Error = errText
	return b
}

// Build returns the assembled result.
func (b *ResultBuilder) Build() contract.ExecutionResult { return b.result }

// FactBuilder assembles a VerifiedFact through the contract constructor, so
// built facts carry the same freeze semantics as gate-minted ones.
type FactBuilder struct {
	factID, queryID, planID string
	values                  map[string]float64
	hash                    string
	confidence              float64
}

// NewFact returns a builder seeded with one value at confidence 0.8.
func NewFact() *FactBuilder {
	return &FactBuilder{
		factID:     "fact-test",
		queryID:    "query-test",
		planID:     "plan-test",
		values:     map[string]float64{"value": 1.0},
		hash:       "hash-test",
		confidence: 0.8,
	}
}

// WithIDs sets the fact, query and plan ids.
func (b *FactBuilder) WithIDs(factID, queryID, planID string) *FactBuilder {
	b.factID, b.queryID, b.planID = factID, queryID, planID
	return b
}

// WithValues replaces the extracted values.
func (b *FactBuilder) WithValues(values map[string]float64) *FactBuilder {
	b.values = values
	return b
}

// WithConfidence sets the initial confidence.
func (b *FactBuilder) WithConfidence(c float64) *FactBuilder {
	b.confidence = c
	return b
}

// Build mints the fact.
func (b *FactBuilder) Build() *contract.VerifiedFact {
	return contract.NewVerifiedFact(b.factID, b.queryID, b.planID, b.values, b.hash, b.confidence)
}

// SeriesBuilder assembles a daily Series.
type SeriesBuilder struct {
	start  time.Time
	points contract.Series
}

// NewSeries returns a builder starting 90 days before DefaultCutoff.
func NewSeries() *SeriesBuilder {
	return &SeriesBuilder{start: DefaultCutoff.AddDate(0, 0, -90)}
}

// StartingAt moves the series origin.
func (b *SeriesBuilder) StartingAt(start time.Time) *SeriesBuilder {
	b.start = start
	return b
}

// WithCloses appends one daily point per value.
func (b *SeriesBuilder) WithCloses(closes ...float64) *SeriesBuilder {
	for i, c := range closes {
		b.points = append(b.points, contract.Point{
			Date:   b.start.AddDate(0, 0, i),
			Fields: map[string]float64{"close": c},
		})
	}
	return b
}

// Build returns the assembled series.
func (b *SeriesBuilder) Build() contract.Series { return b.points }
