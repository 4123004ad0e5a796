package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/debate"
	"github.com/sergeeey/verifind/decompose"
	"github.com/sergeeey/verifind/task"
)

// stackLogger and opTimer are richer diagnostics a logging.PipelineLogger
// offers beyond the minimal Logger interface.
type stackLogger interface {
	ErrorWithStack(err error, msg string, args ...any)
}

type opTimer interface {
	StartTimer(op string) func()
}

// run drives one query to a terminal state. It owns the query's goroutine.
func (o *Orchestrator) run(ctx context.Context, qr *queryRun) {
	defer o.wg.Done()
	defer close(qr.done)
	defer qr.cancel()
	if tm, ok := o.logger.(opTimer); ok {
		defer tm.StartTimer("query " + qr.qctx.QueryID)()
	}

	result, err := o.execute(ctx, qr)

	qr.mu.Lock()
	cancelRequested := qr.cancelRequested
	qr.mu.Unlock()

	if err != nil {
		// Disambiguate why the context died before classifying.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if cancelRequested {
				err = fmt.Errorf("%w: %v", errCancelled, err)
			} else if ctx.Err() != nil {
				err = fmt.Errorf("%w: %v", errTimeout, err)
			}
		}
		kind := classify(err)

		terminal := StateFailed
		if kind == ErrorKindCancelled {
			terminal = StateCancelled
		}
		// The single-task path holds each stage's state while it runs, so
		// LastGoodState is already the failing stage; decomposed queries
		// recover it from the error kind.
		qr.mu.Lock()
		lastGood := stageFor(kind, qr.status.LastGoodState)
		qr.status.LastGoodState = lastGood
		qr.mu.Unlock()
		_ = o.transition(qr, terminal)

		qr.mu.Lock()
		qr.err = &StageError{State: lastGood, Kind: kind, Err: err}
		qr.status.ErrKind = kind
		qr.status.Err = err.Error()
		qr.mu.Unlock()

		if sl, ok := o.logger.(stackLogger); ok && kind == ErrorKindInternal {
			sl.ErrorWithStack(err, "query terminal", "query", qr.qctx.QueryID, "state", string(terminal), "kind", string(kind))
		} else {
			o.logger.Error("query terminal", "query", qr.qctx.QueryID, "state", string(terminal), "kind", string(kind), "error", err)
		}
		return
	}

	qr.mu.Lock()
	qr.result = result
	qr.status.FactID = result.Fact.FactID
	qr.mu.Unlock()
	_ = o.transition(qr, StateCompleted)
	o.logger.Info("query completed", "query", qr.qctx.QueryID, "degraded", result.Degraded)
}

// execute walks the happy path. Any returned error sends the query to a
// terminal failure state in run.
func (o *Orchestrator) execute(ctx context.Context, qr *queryRun) (*Result, error) {
	qctx := qr.qctx

	if err := o.transition(qr, StatePlanning); err != nil {
		return nil, err
	}
	dec, err := decompose.Decompose(qctx.QueryText)
	if err != nil {
		return nil, err
	}

	facts := make(map[string]*contract.VerifiedFact, len(dec.Subtasks))
	degraded := false

	if len(dec.Subtasks) == 1 {
		// A single node is the whole query: each stage runs under its own
		// state, advanced as the previous stage's outcome arrives.
		fact, err := o.runNode(ctx, qr, dec.Subtasks[0], task.Inputs{}, func(to State) error {
			return o.transition(qr, to)
		})
		if err != nil {
			return nil, err
		}
		facts[dec.Subtasks[0].ID] = fact
	} else {
		// Decomposed queries run every node's full chain concurrently, so
		// the query-level states stay coarse and the failing stage is
		// recovered from the error kind instead.
		if err := o.transition(qr, StateFetching); err != nil {
			return nil, err
		}
		if err := o.transition(qr, StateExecuting); err != nil {
			return nil, err
		}

		tasks := make(map[string]task.Task, len(dec.Subtasks))
		for _, st := range dec.Subtasks {
			if st.Kind == decompose.KindAggregate && len(st.Entities) == 0 {
				st.Entities = upstreamEntities(dec, st)
			}
			tasks[st.ID] = task.Task{
				ID:        st.ID,
				DependsOn: st.DependsOn,
				Aggregate: st.Kind == decompose.KindAggregate,
				Payload:   st,
			}
		}

		state := task.NewSharedState()
		results, err := o.tasks.Execute(ctx, dec.Graph, tasks, state, func(ctx context.Context, t task.Task, in task.Inputs) (any, error) {
			return o.runNode(ctx, qr, t.Payload.(decompose.Subtask), in, nil)
		})
		if err != nil {
			return nil, err
		}

		final := dec.Subtasks[len(dec.Subtasks)-1].ID
		for id, res := range results {
			switch res.Status {
			case task.StatusDone:
				facts[id] = res.Value.(*contract.VerifiedFact)
				if res.Degraded {
					degraded = true
				}
			default:
				degraded = true
				if id == final {
					// The query's answer node itself is unrecoverable.
					return nil, res.Err
				}
			}
		}

		if err := o.transition(qr, StateGating); err != nil {
			return nil, err
		}
	}

	if err := o.transition(qr, StateDebating); err != nil {
		return nil, err
	}

	// Every admitted fact gets its own debate; the final node's synthesis is
	// the query's cross-entity answer.
	finalID := dec.Subtasks[len(dec.Subtasks)-1].ID
	var allReports []debate.DebateReport
	var synthesis debate.Synthesis
	for _, st := range dec.Subtasks {
		fact, ok := facts[st.ID]
		if !ok {
			continue
		}
		reports, syn, err := o.debater.Debate(ctx, fact, qctx)
		if err != nil {
			return nil, err
		}
		allReports = append(allReports, reports...)
		if st.ID == finalID {
			synthesis = syn
		}
	}
	synthesis.ReducedCoverage = synthesis.ReducedCoverage || degraded

	if o.sink != nil {
		if err := o.sink.SaveReports(qctx.QueryID, allReports); err != nil {
			o.logger.Warn("persist reports failed", "query", qctx.QueryID, "error", err)
		}
		if err := o.sink.SaveSynthesis(qctx.QueryID, synthesis); err != nil {
			o.logger.Warn("persist synthesis failed", "query", qctx.QueryID, "error", err)
		}
	}

	return &Result{
		QueryID:   qctx.QueryID,
		Fact:      facts[finalID],
		Facts:     facts,
		Reports:   allReports,
		Synthesis: synthesis,
		Degraded:  degraded,
	}, nil
}

// runNode runs one subtask through plan, fetch, execute and gate. Dependency
// facts arrive as derived bindings so an aggregation script can consume the
// values its upstream analyses published. When advance is non-nil the node
// owns the query's state machine and moves it as each stage completes;
// otherwise the node runs silently under the orchestrator's coarse state.
func (o *Orchestrator) runNode(ctx context.Context, qr *queryRun, st decompose.Subtask, in task.Inputs, advance func(State) error) (*contract.VerifiedFact, error) {
	if advance == nil {
		advance = func(State) error { return nil }
	}
	o.setNode(qr, st.ID)

	nodeQctx := qr.qctx
	nodeQctx.QueryText = nodeQueryText(st)

	var plan contract.PlanContract
	err := o.withRetry(ctx, func() error {
		var perr error
		plan, perr = o.planner.Plan(ctx, nodeQctx)
		return perr
	})
	if err != nil {
		return nil, err
	}
	// The decomposer already scoped this node; narrow the plan's data
	// requirements to that scope so a fan-out analysis only fetches and
	// computes over its own entity.
	if len(st.Entities) > 0 {
		plan.Requirements.Entities = st.Entities
	}

	if err := advance(StateFetching); err != nil {
		return nil, err
	}
	var data contract.DataContract
	err = o.withRetry(ctx, func() error {
		var ferr error
		data, ferr = o.fetcher.Fetch(ctx, plan.Requirements, nodeQctx)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if entity, pt, violated := data.Violation(); violated {
		return nil, fmt.Errorf("fetch: entity %s datapoint at %s breaches cutoff %s",
			entity, pt.Date.Format("2006-01-02"), data.Cutoff.Format("2006-01-02"))
	}

	bindings := bindingsFrom(data, in)

	if err := advance(StateExecuting); err != nil {
		return nil, err
	}
	var result contract.ExecutionResult
	err = o.withRetry(ctx, func() error {
		var xerr error
		result, xerr = o.executor.Execute(ctx, plan.ScriptText, bindings, o.cfg.SandboxLimits())
		return xerr
	})
	if err != nil {
		return nil, err
	}

	if err := advance(StateGating); err != nil {
		return nil, err
	}
	fact, err := o.gate.Evaluate(result, plan, nodeQctx)
	if err != nil {
		// Gate rejections are terminal; they must never loop back through
		// the retry path.
		return nil, err
	}

	if o.sink != nil {
		if serr := o.sink.SaveFact(qr.qctx.QueryID, st.ID, fact); serr != nil {
			o.logger.Warn("persist fact failed", "query", qr.qctx.QueryID, "node", st.ID, "error", serr)
		}
	}
	return fact, nil
}

// nodeQueryText rebuilds the subtask's effective query so entity extraction
// downstream (planner, fetcher) sees the entities this node is scoped to.
func nodeQueryText(st decompose.Subtask) string {
	text := st.QueryText
	if len(st.Entities) > 0 && !containsAll(text, st.Entities) {
		text = fmt.Sprintf("%s for %s", text, strings.Join(st.Entities, " and "))
	}
	return text
}

func containsAll(text string, entities []string) bool {
	for _, e := range entities {
		if !strings.Contains(text, e) {
			return false
		}
	}
	return true
}

// upstreamEntities scopes an aggregate node to the union of its transitive
// dependencies' entities, preserving first-seen order.
func upstreamEntities(dec decompose.Decomposition, st decompose.Subtask) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(ids []string)
	walk = func(ids []string) {
		for _, id := range ids {
			dep, ok := dec.ByID(id)
			if !ok {
				continue
			}
			for _, e := range dep.Entities {
				if !seen[e] {
					seen[e] = true
					out = append(out, e)
				}
			}
			walk(dep.DependsOn)
		}
	}
	walk(st.DependsOn)
	return out
}

// bindingsFrom converts the fetched series and dependency facts into the
// script's input document. Series arrive per entity as date-keyed rows;
// upstream values arrive under "derived" keyed by task id.
func bindingsFrom(data contract.DataContract, in task.Inputs) map[string]any {
	bindings := make(map[string]any, len(data.Entities)+1)
	for _, name := range data.EntityNames() {
		series := data.Entities[name]
		rows := make([]map[string]any, 0, len(series))
		for _, pt := range series {
			row := make(map[string]any, len(pt.Fields)+1)
			row["date"] = pt.Date.Format("2006-01-02")
			for k, v := range pt.Fields {
				row[k] = v
			}
			rows = append(rows, row)
		}
		bindings[name] = rows
	}

	derived := make(map[string]map[string]float64)
	for dep, res := range in.Dependencies {
		fact, ok := res.Value.(*contract.VerifiedFact)
		if !ok || fact == nil {
			continue
		}
		derived[dep] = fact.ExtractedValues()
	}
	if len(derived) > 0 {
		bindings["derived"] = derived
	}
	return bindings
}
