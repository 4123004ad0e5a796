package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanBuilder(t *testing.T) {
	plan := NewPlan().
		WithID("p-1").
		WithEntities("ACME", "WIDGET").
		WithScript("publish('x', 2)").
		Build()

	require.NoError(t, plan.Validate())
	assert.Equal(t, "p-1", plan.ID)
	assert.Equal(t, []string{"ACME", "WIDGET"}, plan.Requirements.Entities)
}

func TestQueryBuilder(t *testing.T) {
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	qctx := NewQuery("what is ACME's SMA").
		WithCutoff(cutoff).
		WithAttribute("source_tier", "primary").
		Build()

	assert.Equal(t, cutoff, qctx.EffectiveCutoff())
	assert.Equal(t, "primary", qctx.Attributes["source_tier"])
}

func TestResultBuilder(t *testing.T) {
	ok := NewResult().WithValues(map[string]float64{"sma": 10}).WithHash("h").Build()
	assert.True(t, ok.Succeeded)
	assert.Equal(t, 10.0, ok.Values()["sma"])

	failed := NewResult().Failed("ZeroDivisionError").Build()
	assert.False(t, failed.Succeeded)
	assert.Equal(t, "ZeroDivisionError", failed.Error)
}

func TestFactBuilder(t *testing.T) {
	fact := NewFact().
		WithIDs("f-1", "q-1", "p-1").
		WithValues(map[string]float64{"sma": 10}).
		WithConfidence(0.7).
		Build()

	assert.Equal(t, "f-1", fact.FactID)
	assert.Equal(t, 0.7, fact.Confidence())
	v, ok := fact.Value("sma")
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestSeriesBuilder(t *testing.T) {
	s := NewSeries().WithCloses(1, 2, 3).Build()
	require.Len(t, s, 3)
	assert.True(t, s[0].Date.Before(s[1].Date))
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 3.0, last.Fields["close"])
}
