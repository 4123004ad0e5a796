package task

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sergeeey/verifind/decompose"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func analysisTask(id string, deps ...string) Task {
	return Task{ID: id, DependsOn: deps}
}

func aggregateTask(id string, deps ...string) Task {
	return Task{ID: id, DependsOn: deps, Aggregate: true}
}

func asMap(tasks ...Task) map[string]Task {
	out := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out
}

func graphOf(tasks map[string]Task, order ...string) *decompose.DependencyGraph {
	g := decompose.NewDependencyGraph()
	for _, id := range order {
		g.Add(id, tasks[id].DependsOn...)
	}
	return g
}

func TestExecute_WavesRunInOrder(t *testing.T) {
	tasks := asMap(
		analysisTask("a"),
		analysisTask("b"),
		aggregateTask("c", "a", "b"),
	)
	g := graphOf(tasks, "a", "b", "c")

	var mu sync.Mutex
	var order []string

	orch := NewOrchestrator()
	results, err := orch.Execute(context.Background(), g, tasks, NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) {
			mu.Lock()
			order = append(order, tk.ID)
			mu.Unlock()
			return tk.ID + "-value", nil
		})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for id, res := range results {
		assert.Equal(t, StatusDone, res.Status, id)
		assert.Equal(t, id+"-value", res.Value)
	}

	// c must come last; a and b may interleave.
	require.Len(t, order, 3)
	assert.Equal(t, "c", order[2])
	first := []string{order[0], order[1]}
	sort.Strings(first)
	assert.Equal(t, []string{"a", "b"}, first)
}

func TestExecute_AggregatorSeesDependencyValues(t *testing.T) {
	tasks := asMap(analysisTask("a"), analysisTask("b"), aggregateTask("agg", "a", "b"))
	g := graphOf(tasks, "a", "b", "agg")

	orch := NewOrchestrator()
	results, err := orch.Execute(context.Background(), g, tasks, NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) {
			if !tk.Aggregate {
				return len(tk.ID), nil
			}
			require.Len(t, in.Dependencies, 2)
			assert.Equal(t, 1, in.Dependencies["a"].Value)
			assert.Equal(t, 1, in.Dependencies["b"].Value)
			assert.False(t, in.Degraded)
			return "combined", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "combined", results["agg"].Value)
	assert.False(t, results["agg"].Degraded)
}

func TestExecute_SiblingFaultIsolation(t *testing.T) {
	tasks := asMap(analysisTask("good"), analysisTask("bad"))
	g := graphOf(tasks, "good", "bad")

	boom := errors.New("boom")
	orch := NewOrchestrator()
	results, err := orch.Execute(context.Background(), g, tasks, NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) {
			if tk.ID == "bad" {
				return nil, boom
			}
			return 42, nil
		})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, results["good"].Status)
	assert.Equal(t, 42, results["good"].Value)
	assert.Equal(t, StatusFailed, results["bad"].Status)
	assert.ErrorIs(t, results["bad"].Err, boom)
}

func TestExecute_DependentOfFailureIsSkipped(t *testing.T) {
	tasks := asMap(analysisTask("a"), analysisTask("b", "a"), analysisTask("c", "b"))
	g := graphOf(tasks, "a", "b", "c")

	var ran atomic.Int32
	orch := NewOrchestrator()
	results, err := orch.Execute(context.Background(), g, tasks, NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) {
			ran.Add(1)
			return nil, errors.New("a failed")
		})
	require.NoError(t, err)

	// Only "a" ever executed; b and c were skipped, and the skip status is
	// distinct from a plain failure.
	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, StatusFailed, results["a"].Status)
	assert.Equal(t, StatusFailedByDependency, results["b"].Status)
	assert.ErrorIs(t, results["b"].Err, ErrFailedByDependency)
	assert.Equal(t, StatusFailedByDependency, results["c"].Status)
}

func TestExecute_AggregatorRunsDegradedOnPartialFailure(t *testing.T) {
	tasks := asMap(analysisTask("a"), analysisTask("b"), aggregateTask("agg", "a", "b"))
	g := graphOf(tasks, "a", "b", "agg")

	orch := NewOrchestrator()
	results, err := orch.Execute(context.Background(), g, tasks, NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) {
			switch tk.ID {
			case "a":
				return 1.0, nil
			case "b":
				return nil, errors.New("fetch failed")
			default:
				assert.True(t, in.Degraded)
				require.Contains(t, in.Dependencies, "a")
				require.Contains(t, in.Dependencies, "b")
				return in.Dependencies["a"].Value, nil
			}
		})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, results["agg"].Status)
	assert.Equal(t, 1.0, results["agg"].Value)
	assert.True(t, results["agg"].Degraded)
}

func TestExecute_CancellationMarksUnstartedTasks(t *testing.T) {
	tasks := asMap(analysisTask("a"), analysisTask("b", "a"), analysisTask("c", "b"))
	g := graphOf(tasks, "a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Int32

	orch := NewOrchestrator()
	results, err := orch.Execute(ctx, g, tasks, NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) {
			ran.Add(1)
			cancel() // cancel while the first task is still in flight
			return "done", nil
		})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, StatusDone, results["a"].Status)
	assert.Equal(t, StatusCancelled, results["b"].Status)
	assert.ErrorIs(t, results["b"].Err, ErrCancelled)
	assert.Equal(t, StatusCancelled, results["c"].Status)
}

func TestExecute_CycleAbortsBeforeAnyTaskRuns(t *testing.T) {
	g := decompose.NewDependencyGraph()
	g.Add("a", "b")
	g.Add("b", "a")
	tasks := asMap(analysisTask("a", "b"), analysisTask("b", "a"))

	var ran atomic.Int32
	orch := NewOrchestrator()
	_, err := orch.Execute(context.Background(), g, tasks, NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) {
			ran.Add(1)
			return nil, nil
		})
	assert.ErrorIs(t, err, decompose.ErrUnsatisfiableQuery)
	assert.Zero(t, ran.Load())
}

func TestExecute_MissingTaskDefinition(t *testing.T) {
	g := decompose.NewDependencyGraph()
	g.Add("a")
	g.Add("phantom")

	orch := NewOrchestrator()
	_, err := orch.Execute(context.Background(), g, asMap(analysisTask("a")), NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) { return nil, nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phantom")
}

func TestExecute_ConcurrencyLimitRespected(t *testing.T) {
	tasks := asMap(analysisTask("a"), analysisTask("b"), analysisTask("c"), analysisTask("d"))
	g := graphOf(tasks, "a", "b", "c", "d")

	var inFlight, peak atomic.Int32
	orch := NewOrchestrator(func(o *OrchestratorOptions) {
		o.MaxConcurrency = 2
	})
	_, err := orch.Execute(context.Background(), g, tasks, NewSharedState(),
		func(ctx context.Context, tk Task, in Inputs) (any, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSharedState_ConcurrentPublish(t *testing.T) {
	state := NewSharedState()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			state.Publish(Result{TaskID: string(rune('a' + n%26)), Status: StatusDone, Value: n})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 26, state.Len())
	snap := state.Snapshot()
	for id, res := range snap {
		assert.Equal(t, StatusDone, res.Status, id)
	}

	// Snapshot is a copy: mutating it does not affect the state.
	delete(snap, "a")
	_, ok := state.Get("a")
	assert.True(t, ok)
}
