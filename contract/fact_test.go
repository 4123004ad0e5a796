package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifiedFact_FreezesValues(t *testing.T) {
	src := map[string]float64{"sma": 101.23}
	fact := NewVerifiedFact("f1", "q1", "p1", src, "abc123", 0.8)

	// Mutating the source map after minting must not leak into the fact.
	src["sma"] = -1

	got := fact.ExtractedValues()
	assert.Equal(t, 101.23, got["sma"])

	// Mutating the returned copy must not leak either.
	got["sma"] = 0
	v, ok := fact.Value("sma")
	require.True(t, ok)
	assert.Equal(t, 101.23, v)
}

func TestVerifiedFact_ConfidenceOnlyDecreases(t *testing.T) {
	fact := NewVerifiedFact("f1", "q1", "p1", map[string]float64{"x": 1}, "h", 0.7)

	require.NoError(t, fact.ReduceConfidence(0.4))
	assert.Equal(t, 0.4, fact.Confidence())

	err := fact.ReduceConfidence(0.9)
	assert.Error(t, err)
	assert.Equal(t, 0.4, fact.Confidence())
}

func TestVerifiedFact_ConfidenceClamped(t *testing.T) {
	fact := NewVerifiedFact("f1", "q1", "p1", nil, "h", 1.7)
	assert.Equal(t, 1.0, fact.Confidence())

	require.NoError(t, fact.ReduceConfidence(-2))
	assert.Equal(t, 0.0, fact.Confidence())
}

func TestPlanContract_Validate(t *testing.T) {
	base := PlanContract{
		ID:         "p1",
		ScriptText: "publish('sma', mean(close))",
		Requirements: DataRequirements{
			Entities:  []string{"ACME"},
			StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	assert.NoError(t, base.Validate())

	empty := base
	empty.ScriptText = "  "
	assert.Error(t, empty.Validate())

	noEntities := base
	noEntities.Requirements.Entities = nil
	assert.Error(t, noEntities.Validate())

	inverted := base
	inverted.Requirements.StartDate, inverted.Requirements.EndDate = base.Requirements.EndDate, base.Requirements.StartDate
	assert.Error(t, inverted.Validate())
}

func TestDataContract_Violation(t *testing.T) {
	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dc := DataContract{
		Cutoff: cutoff,
		Entities: map[string]Series{
			"ACME": {
				{Date: cutoff.AddDate(0, -1, 0), Fields: map[string]float64{"close": 10}},
			},
		},
	}
	_, _, violated := dc.Violation()
	assert.False(t, violated)

	dc.Entities["ACME"] = append(dc.Entities["ACME"], Point{Date: cutoff.AddDate(0, 0, 1)})
	name, pt, violated := dc.Violation()
	assert.True(t, violated)
	assert.Equal(t, "ACME", name)
	assert.True(t, pt.Date.After(cutoff))
}
