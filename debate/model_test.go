package debate

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeeey/verifind/model"
)

func reportJSON(quality float64) string {
	return `{"arguments":[
		{"claim":"values support the reading","evidence":["sma=101.23"],"strength":"strong"},
		{"claim":"volume confirms participation","evidence":["volume=1.2e6"],"strength":"moderate"},
		{"claim":"historical data only","evidence":["cutoff respected"],"strength":"weak"}
	],"quality_score":` + strconv.FormatFloat(quality, 'g', -1, 64) + `}`
}

func TestModelEngine_Debate(t *testing.T) {
	m := model.NewMockModel("debater")
	m.AddResponse("Perspective: bull", reportJSON(0.9))
	m.AddResponse("Perspective: bear", reportJSON(0.4))
	m.AddResponse("Perspective: neutral", reportJSON(0.7))

	engine := NewModelEngine(m)
	fact := testFact(0.95)

	reports, syn, err := engine.Debate(context.Background(), fact, testQuery())
	require.NoError(t, err)
	require.Len(t, reports, 3)

	// min 0.4, spread 0.5, default dampening 0.5 -> 0.4 * 0.75 = 0.3
	assert.InDelta(t, 0.3, syn.Confidence, 1e-9)
	assert.Equal(t, syn.Confidence, fact.Confidence())
	assert.False(t, syn.ReducedCoverage)
}

func TestModelEngine_DropsMalformedCompletion(t *testing.T) {
	m := model.NewMockModel("debater")
	m.AddResponse("Perspective: bull", reportJSON(0.8))
	m.AddResponse("Perspective: bear", "I refuse to answer in JSON")
	m.AddResponse("Perspective: neutral", reportJSON(0.7))

	engine := NewModelEngine(m)
	fact := testFact(0.95)

	_, syn, err := engine.Debate(context.Background(), fact, testQuery())
	require.NoError(t, err)
	assert.True(t, syn.ReducedCoverage)
}

func TestModelEngine_AllMalformedFailsClosed(t *testing.T) {
	m := model.NewMockModel("debater")
	m.AddResponse("Perspective", "not json at all")

	engine := NewModelEngine(m)
	fact := testFact(0.85)

	_, _, err := engine.Debate(context.Background(), fact, testQuery())
	assert.ErrorIs(t, err, ErrAllPerspectivesMalformed)
	// Fail closed: confidence untouched.
	assert.Equal(t, 0.85, fact.Confidence())
}
