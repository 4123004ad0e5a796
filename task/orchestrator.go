package task

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sergeeey/verifind/decompose"
	"github.com/sergeeey/verifind/logging"
)

// Inputs is what a task receives at execution time: the published results of
// its declared dependencies, plus the degraded flag when some of them failed.
type Inputs struct {
	Dependencies map[string]Result
	Degraded     bool
}

// Runner executes a single task. Implementations receive the task payload
// and its dependency inputs and return the value to publish. Runners for
// sibling tasks execute concurrently and must not share mutable state beyond
// the SharedState they are handed.
type Runner func(ctx context.Context, t Task, in Inputs) (any, error)

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Logger logging.Logger
	// MaxConcurrency bounds how many tasks of one wave run at once;
	// 0 means unbounded.
	MaxConcurrency int
}

// Orchestrator executes a dependency graph wave by wave. Within a wave every
// task runs concurrently with per-task fault isolation: one sibling failing
// never aborts the others. Tasks whose dependencies failed are marked
// failed-by-dependency without executing, except aggregators, which run on
// partial inputs with the degraded flag set.
type Orchestrator struct {
	logger         logging.Logger
	maxConcurrency int
}

// NewOrchestrator constructs an Orchestrator with optional overrides.
func NewOrchestrator(optFns ...func(o *OrchestratorOptions)) *Orchestrator {
	opts := OrchestratorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Orchestrator{logger: opts.Logger, maxConcurrency: opts.MaxConcurrency}
}

// Execute runs all tasks against the given shared state and returns the
// final result snapshot. The graph is validated up front: a cycle aborts
// before any task starts. Cancellation between waves marks every not-yet-
// started task cancelled; no task starts after cancellation is observed.
func (o *Orchestrator) Execute(
	ctx context.Context,
	graph *decompose.DependencyGraph,
	tasks map[string]Task,
	state *SharedState,
	run Runner,
) (map[string]Result, error) {
	waves, err := graph.Waves()
	if err != nil {
		return nil, err
	}
	for _, wave := range waves {
		for _, id := range wave {
			if _, ok := tasks[id]; !ok {
				return nil, fmt.Errorf("task: graph node %s has no task definition", id)
			}
		}
	}

	for i, wave := range waves {
		if ctx.Err() != nil {
			o.cancelRemaining(waves[i:], state)
			return state.Snapshot(), ctx.Err()
		}
		o.logger.Debug("wave starting", "wave", i, "tasks", len(wave))
		o.runWave(ctx, wave, tasks, state, run)
	}
	return state.Snapshot(), nil
}

func (o *Orchestrator) runWave(ctx context.Context, wave []string, tasks map[string]Task, state *SharedState, run Runner) {
	g := &errgroup.Group{}
	if o.maxConcurrency > 0 {
		g.SetLimit(o.maxConcurrency)
	}
	for _, id := range wave {
		t := tasks[id]
		g.Go(func() error {
			state.Publish(o.runTask(ctx, t, state, run))
			return nil
		})
	}
	// Errors never cross task boundaries; they live in each published result.
	_ = g.Wait()
}

// runTask resolves dependency inputs, applies the skip rules and executes
// the runner. It returns the result to publish and never panics across the
// goroutine boundary.
func (o *Orchestrator) runTask(ctx context.Context, t Task, state *SharedState, run Runner) Result {
	in := Inputs{Dependencies: make(map[string]Result, len(t.DependsOn))}
	cancelled := false
	for _, dep := range t.DependsOn {
		res, ok := state.Get(dep)
		if !ok {
			// Wave ordering guarantees dependencies are terminal; a missing
			// entry means the dependency was cancelled before publishing.
			cancelled = true
			continue
		}
		in.Dependencies[dep] = res
		switch res.Status {
		case StatusCancelled:
			cancelled = true
		case StatusFailed, StatusFailedByDependency:
			in.Degraded = true
		}
	}

	switch {
	case cancelled:
		return Result{TaskID: t.ID, Status: StatusCancelled, Err: ErrCancelled}
	case in.Degraded && !t.Aggregate:
		o.logger.Warn("task skipped", "task", t.ID, "reason", "dependency failed")
		return Result{TaskID: t.ID, Status: StatusFailedByDependency, Err: ErrFailedByDependency}
	}

	if ctx.Err() != nil {
		return Result{TaskID: t.ID, Status: StatusCancelled, Err: ErrCancelled}
	}

	value, err := run(ctx, t, in)
	if err != nil {
		o.logger.Warn("task failed", "task", t.ID, "error", err)
		return Result{TaskID: t.ID, Status: StatusFailed, Err: err, Degraded: in.Degraded}
	}
	return Result{TaskID: t.ID, Status: StatusDone, Value: value, Degraded: in.Degraded}
}

func (o *Orchestrator) cancelRemaining(waves [][]string, state *SharedState) {
	for _, wave := range waves {
		for _, id := range wave {
			if _, ok := state.Get(id); !ok {
				state.Publish(Result{TaskID: id, Status: StatusCancelled, Err: ErrCancelled})
			}
		}
	}
}
