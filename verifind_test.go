package verifind

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/fetch"
	"github.com/sergeeey/verifind/pipeline"
	"github.com/sergeeey/verifind/sandbox"
)

// failingFetcher stands in for a custom data source.
type failingFetcher struct{}

func (failingFetcher) Fetch(ctx context.Context, req contract.DataRequirements, qctx contract.QueryContext) (contract.DataContract, error) {
	return contract.DataContract{}, &fetch.FetchError{QueryID: qctx.QueryID, Err: context.Canceled}
}

type stubExecutor struct {
	values map[string]float64
}

func (s *stubExecutor) Execute(ctx context.Context, script string, bindings map[string]any, _ sandbox.Limits) (contract.ExecutionResult, error) {
	return contract.ExecutionResult{
		OutputValues: s.values,
		ScriptHash:   sandbox.HashScript(script),
		Succeeded:    true,
	}, nil
}

func TestNew_RequiresPlannerOrScript(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestAsk_EndToEnd(t *testing.T) {
	v, err := New(func(o *Options) {
		o.Script = "publish('sma_20', 101.5)"
		o.Executor = &stubExecutor{values: map[string]float64{"sma_20": 101.5}}
	})
	require.NoError(t, err)
	defer v.Close()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	var series contract.Series
	for d := range 30 {
		series = append(series, contract.Point{
			Date:   base.AddDate(0, 0, d),
			Fields: map[string]float64{"close": 100 + float64(d)},
		})
	}
	require.NoError(t, v.LoadSeries("ACME", series))

	result, err := v.Ask(context.Background(), "what is ACME's 20 day moving average",
		func(q *pipeline.QueryOptions) {
			q.ReferenceDate = base.AddDate(0, 0, 30)
		})
	require.NoError(t, err)
	require.NotNil(t, result.Fact)

	value, ok := result.Fact.Value("sma_20")
	require.True(t, ok)
	assert.Equal(t, 101.5, value)

	// The sink accumulated the run's outputs.
	rec, err := v.Store().Get(result.QueryID)
	require.NoError(t, err)
	assert.Len(t, rec.Facts, 1)
	require.NotNil(t, rec.Synthesis)
}

func TestLoadSeries_RefusedWithCustomFetcher(t *testing.T) {
	v, err := New(func(o *Options) {
		o.Script = "publish('x', 1)"
		o.Fetcher = failingFetcher{}
		o.Executor = &stubExecutor{values: map[string]float64{"x": 1}}
	})
	require.NoError(t, err)
	defer v.Close()

	assert.Error(t, v.LoadSeries("ACME", nil))
}
