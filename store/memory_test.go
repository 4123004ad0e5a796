package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/debate"
	"github.com/sergeeey/verifind/internal/testutil"
)

func testFact(id string) *contract.VerifiedFact {
	return testutil.NewFact().
		WithIDs(id, "q-1", "plan-1").
		WithValues(map[string]float64{"sma_20": 101.5}).
		Build()
}

func TestMemoryStore_AccumulatesRecord(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.SaveFact("q-1", "task-1", testFact("f-1")))
	require.NoError(t, s.SaveFact("q-1", "task-2", testFact("f-2")))
	require.NoError(t, s.SaveReports("q-1", []debate.DebateReport{
		{Perspective: debate.PerspectiveBull, QualityScore: 0.7},
	}))
	require.NoError(t, s.SaveSynthesis("q-1", debate.Synthesis{Confidence: 0.6}))

	rec, err := s.Get("q-1")
	require.NoError(t, err)
	assert.Equal(t, "q-1", rec.QueryID)
	require.Len(t, rec.Facts, 2)
	assert.Equal(t, "task-1", rec.Facts[0].NodeID)
	assert.Equal(t, "f-2", rec.Facts[1].Fact.FactID)
	require.Len(t, rec.Reports, 1)
	require.NotNil(t, rec.Synthesis)
	assert.Equal(t, 0.6, rec.Synthesis.Confidence)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestMemoryStore_GetUnknownQuery(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveFact("q-1", "", testFact("f-1")))
	require.NoError(t, s.SaveSynthesis("q-1", debate.Synthesis{Confidence: 0.5}))

	rec, err := s.Get("q-1")
	require.NoError(t, err)
	rec.Facts = nil
	rec.Synthesis.Confidence = 0.0

	again, err := s.Get("q-1")
	require.NoError(t, err)
	require.Len(t, again.Facts, 1)
	assert.Equal(t, 0.5, again.Synthesis.Confidence)
}

func TestMemoryStore_QueryIDs(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveFact("q-1", "", testFact("f-1")))
	require.NoError(t, s.SaveFact("q-2", "", testFact("f-2")))
	assert.ElementsMatch(t, []string{"q-1", "q-2"}, s.QueryIDs())
}
