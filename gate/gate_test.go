package gate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeeey/verifind/contract"
)

var cutoff = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testPlan() contract.PlanContract {
	return contract.PlanContract{
		ID:          "plan-1",
		Description: "20 day simple moving average",
		ScriptText:  "data = load_inputs()\npublish('sma', sum(data['close'][-20:]) / 20)",
		Requirements: contract.DataRequirements{
			Entities:  []string{"ACME"},
			StartDate: cutoff.AddDate(0, -6, 0),
			EndDate:   cutoff.AddDate(0, 0, -1),
		},
	}
}

func testQuery() contract.QueryContext {
	return contract.QueryContext{
		QueryID:       "query-1",
		QueryText:     "what is ACME's 20 day SMA",
		ReferenceDate: cutoff,
		Cutoff:        cutoff,
		Attributes:    map[string]string{"source_tier": "primary"},
	}
}

func newGate(t *testing.T, cfg Config) *TruthBoundary {
	t.Helper()
	g, err := New(cfg, nil)
	require.NoError(t, err)
	return g
}

func TestEvaluate_AdmitsSandboxedValue(t *testing.T) {
	g := newGate(t, Config{})
	result := contract.ExecutionResult{
		OutputValues: map[string]float64{"sma": 101.23},
		ScriptHash:   "hash-1",
		Succeeded:    true,
	}

	fact, err := g.Evaluate(result, testPlan(), testQuery())
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, 101.23, fact.ExtractedValues()["sma"])
	assert.Equal(t, "hash-1", fact.ScriptHash())
	assert.True(t, fact.SourceVerified)
	assert.True(t, fact.TemporalCompliant)
	assert.InDelta(t, 0.9, fact.Confidence(), 0.11)
}

func TestEvaluate_NeverMintsFromFailedExecution(t *testing.T) {
	g := newGate(t, Config{})
	result := contract.ExecutionResult{
		OutputValues: map[string]float64{"sma": 101.23},
		Succeeded:    false,
		Error:        "ZeroDivisionError",
	}

	fact, err := g.Evaluate(result, testPlan(), testQuery())
	assert.Nil(t, fact)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonNotSourceVerified, rej.Reason)
}

func TestEvaluate_RejectsEmptyOutput(t *testing.T) {
	g := newGate(t, Config{})
	result := contract.ExecutionResult{Succeeded: true}

	_, err := g.Evaluate(result, testPlan(), testQuery())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonNotSourceVerified, rej.Reason)
}

func TestEvaluate_TemporalViolation_PlanRange(t *testing.T) {
	g := newGate(t, Config{})
	plan := testPlan()
	plan.Requirements.EndDate = cutoff.AddDate(0, 0, 7)
	// Even a succeeded result with good values must not pass.
	result := contract.ExecutionResult{OutputValues: map[string]float64{"sma": 100}, Succeeded: true}

	_, err := g.Evaluate(result, plan, testQuery())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonTemporalViolation, rej.Reason)
}

func TestEvaluate_TemporalViolation_ScriptDateLiteral(t *testing.T) {
	g := newGate(t, Config{})
	plan := testPlan()
	plan.ScriptText = "prices = fetch_range('2024-01-01', '2024-12-31')\npublish('x', 1)"
	result := contract.ExecutionResult{OutputValues: map[string]float64{"x": 1}, Succeeded: true}

	_, err := g.Evaluate(result, plan, testQuery())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonTemporalViolation, rej.Reason)
}

func TestEvaluate_TemporalViolation_FutureOffset(t *testing.T) {
	g := newGate(t, Config{})
	plan := testPlan()
	plan.ScriptText = "from datetime import date, timedelta\nend = date.today() + timedelta(days=30)\npublish('x', 1)"
	result := contract.ExecutionResult{OutputValues: map[string]float64{"x": 1}, Succeeded: true}

	_, err := g.Evaluate(result, plan, testQuery())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonTemporalViolation, rej.Reason)
}

func TestEvaluate_ImplausibleValueFailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]float64
	}{
		{"absurd magnitude", map[string]float64{"total": 1e12}},
		{"absurd ratio", map[string]float64{"pe_ratio": 5e6}},
		{"nan", map[string]float64{"sma": math.NaN()}},
		{"infinity", map[string]float64{"sma": math.Inf(1)}},
	}
	g := newGate(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := contract.ExecutionResult{OutputValues: tt.values, Succeeded: true}
			fact, err := g.Evaluate(result, testPlan(), testQuery())
			assert.Nil(t, fact)
			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, ReasonImplausibleValue, rej.Reason)
		})
	}
}

func TestEvaluate_CrossCheckLowersConfidence(t *testing.T) {
	baseline := newGate(t, Config{})
	crossChecked := newGate(t, Config{CrossCheck: map[string]float64{"sma": 200}})

	result := contract.ExecutionResult{OutputValues: map[string]float64{"sma": 101.23}, Succeeded: true}

	factA, err := baseline.Evaluate(result, testPlan(), testQuery())
	require.NoError(t, err)
	factB, err := crossChecked.Evaluate(result, testPlan(), testQuery())
	require.NoError(t, err)

	assert.Less(t, factB.Confidence(), factA.Confidence())
}

func TestEvaluate_UnsafeScriptLowersConfidence(t *testing.T) {
	g := newGate(t, Config{})
	result := contract.ExecutionResult{OutputValues: map[string]float64{"sma": 101.23}, Succeeded: true}

	safe, err := g.Evaluate(result, testPlan(), testQuery())
	require.NoError(t, err)

	risky := testPlan()
	risky.ScriptText = "import os\nimport subprocess\npublish('sma', eval('101.23'))"
	unsafe, err := g.Evaluate(result, risky, testQuery())
	require.NoError(t, err)

	assert.Less(t, unsafe.Confidence(), safe.Confidence())
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.Error(t, Weights{TemporalFreshness: 0.5, SourceReliability: 0.2}.Validate())
	assert.Error(t, Weights{TemporalFreshness: 1.5, SourceReliability: -0.5}.Validate())
}

func TestNew_RejectsBadWeights(t *testing.T) {
	_, err := New(Config{Weights: Weights{TemporalFreshness: 1, SourceReliability: 1}}, nil)
	assert.Error(t, err)
}

func TestScriptSafetyScore(t *testing.T) {
	assert.Equal(t, 1.0, scriptSafetyScore("publish('x', 1)"))
	assert.Less(t, scriptSafetyScore("import subprocess"), 1.0)
	assert.GreaterOrEqual(t, scriptSafetyScore("eval(exec(__import__('os')))"), 0.0)
}
