package decompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaves_Deterministic(t *testing.T) {
	build := func() *DependencyGraph {
		g := NewDependencyGraph()
		g.Add("a")
		g.Add("b")
		g.Add("c", "a", "b")
		g.Add("d", "c")
		g.Add("e", "a")
		return g
	}

	first, err := build().Waves()
	require.NoError(t, err)
	for range 10 {
		again, err := build().Waves()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "e"}, {"d"}}, first)
}

func TestWaves_StableTieBreakByInsertionOrder(t *testing.T) {
	g := NewDependencyGraph()
	g.Add("z")
	g.Add("m")
	g.Add("a")

	waves, err := g.Waves()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"z", "m", "a"}}, waves)
}

func TestWaves_CycleIsUnsatisfiable(t *testing.T) {
	tests := []struct {
		name  string
		build func() *DependencyGraph
	}{
		{"self loop", func() *DependencyGraph {
			g := NewDependencyGraph()
			g.Add("a", "a")
			return g
		}},
		{"two node cycle", func() *DependencyGraph {
			g := NewDependencyGraph()
			g.Add("a", "b")
			g.Add("b", "a")
			return g
		}},
		{"cycle behind a chain", func() *DependencyGraph {
			g := NewDependencyGraph()
			g.Add("root")
			g.Add("a", "root", "c")
			g.Add("b", "a")
			g.Add("c", "b")
			return g
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Waves()
			assert.ErrorIs(t, err, ErrUnsatisfiableQuery)
		})
	}
}

func TestWaves_UnknownDependency(t *testing.T) {
	g := NewDependencyGraph()
	g.Add("a", "ghost")
	_, err := g.Waves()
	assert.ErrorIs(t, err, ErrUnsatisfiableQuery)
}

func TestDecompose_CompareThenCorrelate(t *testing.T) {
	d, err := Decompose("compare ACME and WIDGET, then correlate the results")
	require.NoError(t, err)
	require.Len(t, d.Subtasks, 3)

	assert.Equal(t, []string{"ACME"}, d.Subtasks[0].Entities)
	assert.Equal(t, []string{"WIDGET"}, d.Subtasks[1].Entities)
	assert.Equal(t, KindAnalysis, d.Subtasks[0].Kind)
	assert.Equal(t, KindAggregate, d.Subtasks[2].Kind)
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, d.Subtasks[2].DependsOn)

	waves, err := d.Graph.Waves()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"task-1", "task-2"}, {"task-3"}}, waves)
}

func TestDecompose_SingleEntityQuery(t *testing.T) {
	d, err := Decompose("what is ACME's 20 day moving average")
	require.NoError(t, err)
	require.Len(t, d.Subtasks, 1)
	assert.Equal(t, []string{"ACME"}, d.Subtasks[0].Entities)
	assert.Empty(t, d.Subtasks[0].DependsOn)
}

func TestDecompose_SequencedStages(t *testing.T) {
	d, err := Decompose("analyze ACME volatility; then compute WIDGET beta")
	require.NoError(t, err)
	require.Len(t, d.Subtasks, 2)
	assert.Equal(t, []string{"task-1"}, d.Subtasks[1].DependsOn)
}

func TestDecompose_EmptyQuery(t *testing.T) {
	_, err := Decompose("   ")
	assert.ErrorIs(t, err, ErrUnsatisfiableQuery)
}

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"compare ACME and WIDGET", []string{"ACME", "WIDGET"}},
		{"the 20 day SMA for MSFT", []string{"MSFT"}},
		{"correlate the results", nil},
		{"AAPL vs AAPL", []string{"AAPL"}},
		{"BRK.B dividend yield", []string{"BRK.B"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractEntities(tt.text), tt.text)
	}
}
