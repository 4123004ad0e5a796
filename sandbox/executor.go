package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/logging"
)

// preamble is prepended to every script before it reaches a runtime. It wires
// the input/output channel helpers and, when networking is disallowed,
// replaces the socket constructors so any connection attempt raises instead
// of silently succeeding.
const preamble = `import atexit, json, os
_VEE_RESULTS = {}

def publish(name, value):
    _VEE_RESULTS[str(name)] = float(value)

def load_inputs():
    with open(os.environ["VEE_INPUT"]) as f:
        return json.load(f)

def _vee_flush():
    with open(os.environ["VEE_OUTPUT"], "w") as f:
        json.dump(_VEE_RESULTS, f)

atexit.register(_vee_flush)

if os.environ.get("VEE_OFFLINE") == "1":
    import socket
    def _vee_deny(*args, **kwargs):
        raise RuntimeError("network access is disabled in this sandbox")
    socket.socket = _vee_deny
    socket.create_connection = _vee_deny
    socket.getaddrinfo = _vee_deny
`

// Options configures an Executor.
type Options struct {
	// Runtime executes prepared runs; default ProcessRuntime.
	Runtime Runtime
	// WorkRoot is the directory run arenas are created under; default the
	// system temp dir.
	WorkRoot string
	// SetupRetries bounds backoff retries for sandbox setup failures.
	SetupRetries uint64
	// Logger receives structured run records.
	Logger logging.Logger
}

// Executor is the VEE entry point. It prepares a fresh arena per run, hands
// the script to an isolated runtime, enforces the wall-clock limit and
// classifies the outcome into the sandbox error taxonomy.
//
// Executor is safe for concurrent use; concurrent runs share nothing but the
// runtime handle.
type Executor struct {
	runtime      Runtime
	workRoot     string
	setupRetries uint64
	logger       logging.Logger
}

// NewExecutor constructs an Executor with optional overrides.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := Options{
		Runtime:      NewProcessRuntime(),
		WorkRoot:     os.TempDir(),
		SetupRetries: 3,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Executor{
		runtime:      opts.Runtime,
		workRoot:     opts.WorkRoot,
		setupRetries: opts.SetupRetries,
		logger:       opts.Logger,
	}
}

// Execute runs scriptText against the given input bindings under the given
// limits and returns one immutable ExecutionResult.
//
// Error contract:
//   - script-level exceptions return (result{Succeeded:false}, nil); the gate
//     turns them into rejections
//   - ErrTimeout / ErrResourceExceeded are returned as errors with a failed
//     result and never carry partial output
//   - SetupError is returned after bounded backoff retries are exhausted
//   - a cancelled parent context returns ctx.Err()
func (e *Executor) Execute(ctx context.Context, scriptText string, bindings map[string]any, limits Limits) (contract.ExecutionResult, error) {
	result, err := e.execute(ctx, scriptText, bindings, limits)
	if rl, ok := e.logger.(runLogger); ok {
		rl.LogSandboxRun(result.ScriptHash, result.ExecutionTime, result.MemoryUsedMB, result.Succeeded, err)
	}
	return result, err
}

// runLogger is the richer run record a logging.PipelineLogger offers beyond
// the minimal Logger interface.
type runLogger interface {
	LogSandboxRun(scriptHash string, dur time.Duration, memoryMB float64, success bool, err error)
}

func (e *Executor) execute(ctx context.Context, scriptText string, bindings map[string]any, limits Limits) (contract.ExecutionResult, error) {
	limits = limits.withDefaults()
	result := contract.ExecutionResult{ScriptHash: HashScript(scriptText)}

	spec, cleanup, err := e.prepare(scriptText, bindings, limits)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	start := time.Now()
	out, err := e.runWithSetupRetry(runCtx, spec)
	result.ExecutionTime = time.Since(start)
	result.MemoryUsedMB = out.MemoryPeakMB

	if err != nil {
		switch {
		case ctx.Err() != nil:
			// Parent cancellation, not a per-run timeout.
			result.Error = ctx.Err().Error()
			e.logger.Error("sandbox run cancelled", "script_hash", result.ScriptHash)
			return result, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			result.Error = ErrTimeout.Error()
			e.logger.Warn("sandbox run timed out", "script_hash", result.ScriptHash, "timeout", limits.Timeout)
			return result, ErrTimeout
		default:
			result.Error = err.Error()
			return result, err
		}
	}

	switch classified := classifyExit(out); {
	case classified == nil:
		values, perr := readOutputValues(spec.OutputPath)
		if perr != nil {
			// A zero exit with an unreadable output channel is a script
			// defect: no values were published.
			result.Error = perr.Error()
			return result, nil
		}
		result.OutputValues = values
		result.Succeeded = true
		e.logger.Debug("sandbox run succeeded", "script_hash", result.ScriptHash, "values", len(values), "duration", result.ExecutionTime)
		return result, nil
	case errors.Is(classified, ErrResourceExceeded):
		result.Error = ErrResourceExceeded.Error()
		e.logger.Warn("sandbox run exceeded resources", "script_hash", result.ScriptHash, "memory_mb", out.MemoryPeakMB)
		return result, ErrResourceExceeded
	default:
		// Uncaught script exception: recoverable, surfaces as a failed result.
		result.Error = classified.Error()
		e.logger.Warn("script failed", "script_hash", result.ScriptHash, "error", result.Error)
		return result, nil
	}
}

// prepare builds the per-run arena: a private directory holding the script
// (with preamble), the serialized input bindings and the output channel file
// location. The returned cleanup destroys the arena and everything the script
// wrote into it.
func (e *Executor) prepare(scriptText string, bindings map[string]any, limits Limits) (RunSpec, func(), error) {
	dir, err := os.MkdirTemp(e.workRoot, "vee-run-")
	if err != nil {
		return RunSpec{}, func() {}, &SetupError{Stage: "arena", Err: err}
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	scriptPath := filepath.Join(dir, "script.py")
	if err := os.WriteFile(scriptPath, []byte(preamble+"\n"+scriptText+"\n"), 0o600); err != nil {
		cleanup()
		return RunSpec{}, func() {}, &SetupError{Stage: "script", Err: err}
	}

	if bindings == nil {
		bindings = map[string]any{}
	}
	inputBytes, err := json.Marshal(bindings)
	if err != nil {
		cleanup()
		return RunSpec{}, func() {}, &SetupError{Stage: "bindings", Err: err}
	}
	inputPath := filepath.Join(dir, "input.json")
	if err := os.WriteFile(inputPath, inputBytes, 0o600); err != nil {
		cleanup()
		return RunSpec{}, func() {}, &SetupError{Stage: "bindings", Err: err}
	}

	return RunSpec{
		Dir:        dir,
		ScriptPath: scriptPath,
		InputPath:  inputPath,
		OutputPath: filepath.Join(dir, "output.json"),
		Limits:     limits,
	}, cleanup, nil
}

// runWithSetupRetry invokes the runtime, retrying only infrastructure
// failures with exponential backoff. Script and resource failures are never
// retried here.
func (e *Executor) runWithSetupRetry(ctx context.Context, spec RunSpec) (RunOutput, error) {
	var out RunOutput
	operation := func() error {
		o, err := e.runtime.Run(ctx, spec)
		if err != nil {
			var se *SetupError
			if errors.As(err, &se) {
				e.logger.Warn("sandbox setup failed, retrying", "stage", se.Stage, "error", se.Err)
				return err
			}
			return backoff.Permanent(err)
		}
		out = o
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.setupRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return out, err
	}
	return out, nil
}

// readOutputValues parses the dedicated output channel. Only finite numeric
// values survive; anything else the script smuggled into the file is dropped.
func readOutputValues(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]float64{}, nil
		}
		return nil, fmt.Errorf("read output channel: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode output channel: %w", err)
	}
	values := make(map[string]float64, len(raw))
	for name, v := range raw {
		if f, ok := v.(float64); ok {
			values[name] = f
		}
	}
	return values, nil
}
