// Package verifind provides a high-level façade over the verified execution
// pipeline: planning, data fetching, sandboxed script execution, the truth
// boundary gate and adversarial debate. Most applications interact with this
// package by:
//  1. Creating a VeriFind via New() (optionally overriding default in-memory services)
//  2. Loading or pointing it at historical data
//  3. Submitting queries asynchronously (Submit) or synchronously (Ask)
//
// The façade delegates orchestration to pipeline.Orchestrator while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a real
// data fetcher, a model-driven planner and a durable persistence sink.
package verifind

import (
	"context"
	"fmt"
	"os"

	"github.com/sergeeey/verifind/config"
	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/debate"
	"github.com/sergeeey/verifind/fetch"
	"github.com/sergeeey/verifind/gate"
	"github.com/sergeeey/verifind/logging"
	"github.com/sergeeey/verifind/pipeline"
	"github.com/sergeeey/verifind/planner"
	"github.com/sergeeey/verifind/sandbox"
	"github.com/sergeeey/verifind/store"
)

// Options configures the VeriFind instance.
type Options struct {
	// Config supplies the pipeline's tuning; defaults to config.Default().
	Config config.Config
	// Planner produces plans; required unless a default script is supplied
	// via Script.
	Planner planner.Planner
	// Script, when set and no Planner is given, wires a StaticPlanner.
	Script string
	// Fetcher resolves data requirements; default an empty MemoryFetcher
	// populated via LoadSeries.
	Fetcher fetch.DataFetcher
	// Executor runs scripts; default a process-isolated sandbox executor.
	Executor pipeline.Executor
	// Debater synthesizes multi-perspective reports; default the rule-based
	// engine.
	Debater debate.Adapter
	// Sink persists certified outputs; default an in-memory store.
	Sink store.PersistenceSink
	// Progress observes state transitions.
	Progress pipeline.ProgressSink
	// Logger receives structured records from every stage; default a JSON
	// pipeline logger at Config.LogLevel.
	Logger logging.Logger
}

// VeriFind bundles the pipeline with its default services.
type VeriFind struct {
	orch    *pipeline.Orchestrator
	fetcher *fetch.MemoryFetcher
	sink    store.PersistenceSink
}

// New constructs a VeriFind instance, filling in in-memory defaults for any
// service not supplied.
func New(optFns ...func(o *Options)) (*VeriFind, error) {
	opts := Options{
		Config: config.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		// The default logger carries the contextual pipeline helpers and
		// honors the configured level.
		opts.Logger = logging.NewLogger(&logging.LoggerConfig{
			Level:  logging.ParseLevel(opts.Config.LogLevel),
			Format: "json",
			Output: os.Stdout,
		})
	}
	if opts.Planner == nil {
		if opts.Script == "" {
			return nil, fmt.Errorf("verifind: a Planner or a default Script is required")
		}
		opts.Planner = &planner.StaticPlanner{Script: opts.Script, Description: "default analysis"}
	}

	var memFetcher *fetch.MemoryFetcher
	if opts.Fetcher == nil {
		memFetcher = fetch.NewMemoryFetcher()
		opts.Fetcher = memFetcher
	}
	if opts.Executor == nil {
		var runtime sandbox.Runtime
		switch opts.Config.Sandbox.Runtime {
		case "docker":
			dr, err := sandbox.NewDockerRuntime()
			if err != nil {
				return nil, fmt.Errorf("verifind: docker runtime: %w", err)
			}
			runtime = dr
		default:
			runtime = sandbox.NewProcessRuntime()
		}
		opts.Executor = sandbox.NewExecutor(func(o *sandbox.Options) {
			o.Runtime = runtime
			o.SetupRetries = uint64(opts.Config.Sandbox.SetupRetries)
			o.Logger = opts.Logger
		})
	}
	if opts.Sink == nil {
		opts.Sink = store.NewMemoryStore()
	}

	g, err := gate.New(opts.Config.Gate, opts.Logger)
	if err != nil {
		return nil, err
	}

	orch := pipeline.New(opts.Planner, opts.Fetcher, opts.Executor, g, func(o *pipeline.Options) {
		o.Config = opts.Config
		o.Debater = opts.Debater
		o.Sink = opts.Sink
		o.Progress = opts.Progress
		o.Logger = opts.Logger
	})

	return &VeriFind{orch: orch, fetcher: memFetcher, sink: opts.Sink}, nil
}

// LoadSeries seeds the default in-memory fetcher with an entity's history.
// It returns an error when a custom fetcher was supplied.
func (v *VeriFind) LoadSeries(entity string, series contract.Series) error {
	if v.fetcher == nil {
		return fmt.Errorf("verifind: LoadSeries requires the default in-memory fetcher")
	}
	v.fetcher.Load(entity, series)
	return nil
}

// Submit starts a query asynchronously and returns its id.
func (v *VeriFind) Submit(queryText string, optFns ...func(q *pipeline.QueryOptions)) (string, error) {
	return v.orch.Submit(queryText, optFns...)
}

// Ask runs a query synchronously to its terminal state.
func (v *VeriFind) Ask(ctx context.Context, queryText string, optFns ...func(q *pipeline.QueryOptions)) (*pipeline.Result, error) {
	id, err := v.orch.Submit(queryText, optFns...)
	if err != nil {
		return nil, err
	}
	return v.orch.Wait(ctx, id)
}

// Wait blocks until the query reaches a terminal state.
func (v *VeriFind) Wait(ctx context.Context, queryID string) (*pipeline.Result, error) {
	return v.orch.Wait(ctx, queryID)
}

// GetState returns the current status of a query.
func (v *VeriFind) GetState(queryID string) (pipeline.Status, error) {
	return v.orch.GetState(queryID)
}

// Cancel aborts a running query.
func (v *VeriFind) Cancel(queryID string) error {
	return v.orch.Cancel(queryID)
}

// Store exposes the persistence sink for post-hoc inspection.
func (v *VeriFind) Store() store.PersistenceSink { return v.sink }

// Close waits for in-flight queries to finish.
func (v *VeriFind) Close() { v.orch.Close() }
