// Package pipeline orchestrates a query through the verified execution
// stages: planning, data fetching, sandboxed execution, the truth boundary
// gate and adversarial debate. Each query runs as its own state machine;
// multi-entity queries are decomposed into a dependency graph and delegated
// to the parallel task layer.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sergeeey/verifind/config"
	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/debate"
	"github.com/sergeeey/verifind/fetch"
	"github.com/sergeeey/verifind/internal/util"
	"github.com/sergeeey/verifind/logging"
	"github.com/sergeeey/verifind/planner"
	"github.com/sergeeey/verifind/sandbox"
	"github.com/sergeeey/verifind/store"
	"github.com/sergeeey/verifind/task"
)

// Executor runs a script inside the sandbox. *sandbox.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, scriptText string, bindings map[string]any, limits sandbox.Limits) (contract.ExecutionResult, error)
}

// Gate certifies execution results into verified facts. *gate.TruthBoundary
// satisfies it.
type Gate interface {
	Evaluate(result contract.ExecutionResult, plan contract.PlanContract, qctx contract.QueryContext) (*contract.VerifiedFact, error)
}

// Options configures an Orchestrator beyond its required stages.
type Options struct {
	Config   config.Config
	Debater  debate.Adapter
	Sink     store.PersistenceSink
	Progress ProgressSink
	Logger   logging.Logger
	// RetryBackoff builds the backoff schedule for retriable stage failures.
	RetryBackoff func() backoff.BackOff
}

// Result is a completed query's output.
type Result struct {
	QueryID string
	// Fact is the primary fact: the one produced by the final task of the
	// query's graph.
	Fact *contract.VerifiedFact
	// Facts holds every node's fact keyed by task id.
	Facts     map[string]*contract.VerifiedFact
	Reports   []debate.DebateReport
	Synthesis debate.Synthesis
	// Degraded is set when some subtask failed and an aggregate proceeded on
	// partial inputs.
	Degraded bool
}

// Status is a point-in-time view of a query's progress.
type Status struct {
	QueryID       string
	State         State
	LastGoodState State
	// Node is the subtask the query is currently working on, empty before
	// any node has started.
	Node string
	// FactID is the primary fact's id, set once the query completes.
	FactID      string
	ErrKind     ErrorKind
	Err         string
	Progress    float64
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

type queryRun struct {
	mu     sync.Mutex
	qctx   contract.QueryContext
	status Status
	cancel context.CancelFunc
	// cancelRequested distinguishes a caller cancel from a deadline.
	cancelRequested bool
	done            chan struct{}
	result          *Result
	err             error
}

// Orchestrator drives queries through the pipeline. Construct with New; the
// zero value is not usable.
type Orchestrator struct {
	cfg      config.Config
	planner  planner.Planner
	fetcher  fetch.DataFetcher
	executor Executor
	gate     Gate
	debater  debate.Adapter
	sink     store.PersistenceSink
	progress ProgressSink
	logger   logging.Logger
	backoff  func() backoff.BackOff
	tasks    *task.Orchestrator

	mu      sync.Mutex
	queries map[string]*queryRun
	wg      sync.WaitGroup
	closed  bool
}

// New constructs an Orchestrator over the four required stages.
func New(p planner.Planner, f fetch.DataFetcher, ex Executor, g Gate, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Config:   config.Default(),
		Progress: NoOpProgress{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Debater == nil {
		opts.Debater = debate.NewEngine(func(o *debate.EngineOptions) {
			o.Synthesis = debate.SynthesisConfig{SpreadDampening: opts.Config.Debate.SpreadDampening}
		})
	}
	if opts.Progress == nil {
		opts.Progress = NoOpProgress{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.RetryBackoff == nil {
		opts.RetryBackoff = func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			return bo
		}
	}

	return &Orchestrator{
		cfg:      opts.Config,
		planner:  p,
		fetcher:  f,
		executor: ex,
		gate:     g,
		debater:  opts.Debater,
		sink:     opts.Sink,
		progress: opts.Progress,
		logger:   opts.Logger,
		backoff:  opts.RetryBackoff,
		tasks: task.NewOrchestrator(func(o *task.OrchestratorOptions) {
			o.Logger = opts.Logger
			o.MaxConcurrency = opts.Config.Pipeline.MaxParallelTasks
		}),
		queries: make(map[string]*queryRun),
	}
}

// QueryOptions tunes a single submission.
type QueryOptions struct {
	ReferenceDate time.Time
	Cutoff        time.Time
	Attributes    map[string]string
	// Timeout overrides the configured per-query deadline when positive.
	Timeout time.Duration
}

// Submit starts a query asynchronously and returns its id. The query runs on
// its own goroutine; observe it with GetState, Wait or a ProgressSink.
func (o *Orchestrator) Submit(queryText string, optFns ...func(q *QueryOptions)) (string, error) {
	qopts := QueryOptions{ReferenceDate: time.Now().UTC()}
	for _, fn := range optFns {
		fn(&qopts)
	}

	qctx := contract.QueryContext{
		QueryID:       util.NewID(),
		QueryText:     queryText,
		ReferenceDate: qopts.ReferenceDate,
		Cutoff:        qopts.Cutoff,
		Attributes:    qopts.Attributes,
	}

	timeout := o.cfg.Pipeline.QueryTimeout
	if qopts.Timeout > 0 {
		timeout = qopts.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	now := time.Now().UTC()
	qr := &queryRun{
		qctx:   qctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: Status{
			QueryID:       qctx.QueryID,
			State:         StatePending,
			LastGoodState: StatePending,
			SubmittedAt:   now,
			UpdatedAt:     now,
		},
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return "", fmt.Errorf("pipeline: orchestrator closed")
	}
	o.queries[qctx.QueryID] = qr
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(ctx, qr)
	return qctx.QueryID, nil
}

// GetState returns the current status of a query.
func (o *Orchestrator) GetState(queryID string) (Status, error) {
	o.mu.Lock()
	qr, ok := o.queries[queryID]
	o.mu.Unlock()
	if !ok {
		return Status{}, ErrUnknownQuery
	}
	qr.mu.Lock()
	defer qr.mu.Unlock()
	return qr.status, nil
}

// Cancel aborts a running query. In-flight sandbox executions are killed via
// context cancellation; subtasks that have not started are marked cancelled.
// Cancelling a terminal query is a no-op.
func (o *Orchestrator) Cancel(queryID string) error {
	o.mu.Lock()
	qr, ok := o.queries[queryID]
	o.mu.Unlock()
	if !ok {
		return ErrUnknownQuery
	}
	qr.mu.Lock()
	qr.cancelRequested = true
	qr.mu.Unlock()
	qr.cancel()
	return nil
}

// Wait blocks until the query reaches a terminal state and returns its
// result or failure.
func (o *Orchestrator) Wait(ctx context.Context, queryID string) (*Result, error) {
	o.mu.Lock()
	qr, ok := o.queries[queryID]
	o.mu.Unlock()
	if !ok {
		return nil, ErrUnknownQuery
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-qr.done:
	}
	qr.mu.Lock()
	defer qr.mu.Unlock()
	return qr.result, qr.err
}

// Close waits for all in-flight queries to finish. New submissions are
// refused after Close is called.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.wg.Wait()
}

// transitionLogger is the richer transition record a logging.PipelineLogger
// offers beyond the minimal Logger interface.
type transitionLogger interface {
	LogStateTransition(from, to string, progress float64)
}

// transition moves the query to the next state and notifies the progress
// sink. Illegal moves are programming errors and reported as such.
func (o *Orchestrator) transition(qr *queryRun, to State) error {
	qr.mu.Lock()
	from := qr.status.State
	if !canTransition(from, to) {
		qr.mu.Unlock()
		return fmt.Errorf("pipeline: illegal transition %s -> %s", from, to)
	}
	qr.status.State = to
	if !to.Terminal() {
		qr.status.LastGoodState = to
	}
	qr.status.Progress = stateProgress[to]
	qr.status.UpdatedAt = time.Now().UTC()
	node := qr.status.Node
	qr.mu.Unlock()

	if tl, ok := o.logger.(transitionLogger); ok {
		tl.LogStateTransition(string(from), string(to), stateProgress[to])
	} else {
		o.logger.Info("state transition", "query", qr.qctx.QueryID, "from", string(from), "to", string(to))
	}
	o.progress.OnTransition(qr.qctx.QueryID, node, from, to, stateProgress[to])
	return nil
}

// setNode records the subtask the query is currently working on.
func (o *Orchestrator) setNode(qr *queryRun, node string) {
	qr.mu.Lock()
	qr.status.Node = node
	qr.mu.Unlock()
}

// withRetry runs op, retrying retriable failures on the configured schedule.
func (o *Orchestrator) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(o.backoff(), uint64(o.cfg.Pipeline.MaxRetries)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !retriable(err) {
			return backoff.Permanent(err)
		}
		o.logger.Warn("stage failed, retrying", "error", err)
		return err
	}, bo)
}

var _ Executor = (*sandbox.Executor)(nil)
