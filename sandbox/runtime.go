package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Limits bounds a single sandbox run. The host enforces every limit; the
// script has no say in its own quota.
type Limits struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxMemoryMB  int           `yaml:"max_memory_mb"`
	AllowNetwork bool          `yaml:"allow_network"`
}

// DefaultLimits returns the baseline quota applied when a caller passes a
// zero value.
func DefaultLimits() Limits {
	return Limits{Timeout: 30 * time.Second, MaxMemoryMB: 512, AllowNetwork: false}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	if l.MaxMemoryMB <= 0 {
		l.MaxMemoryMB = d.MaxMemoryMB
	}
	return l
}

// RunSpec describes one prepared run: the arena directory containing the
// script and its input file, the path the script must write its findings to,
// and the enforced limits. Paths are absolute on the host; runtimes may remap
// them into their own namespace.
type RunSpec struct {
	Dir        string
	ScriptPath string
	InputPath  string
	OutputPath string
	Limits     Limits
}

// RunOutput is the raw, unclassified outcome of a runtime invocation.
type RunOutput struct {
	Stdout       []byte
	Stderr       []byte
	ExitCode     int
	MemoryPeakMB float64
}

// Runtime executes a prepared script inside an isolated execution context.
// Implementations must guarantee that cancelling ctx forcibly kills the
// context (process group or container) and that concurrent runs share no
// mutable state.
type Runtime interface {
	Run(ctx context.Context, spec RunSpec) (RunOutput, error)
}

// ProcessRuntime runs scripts in a child OS process with an allowlisted
// environment, a private process group and kernel resource limits. The
// memory ceiling is applied through the shell's address-space rlimit before
// the interpreter is exec'd.
type ProcessRuntime struct {
	// Interpreter is the command used to run the script, default "python3".
	Interpreter string
	// Path is the PATH value exposed to the run. Nothing else from the host
	// environment is passed through.
	Path string
}

// NewProcessRuntime constructs a ProcessRuntime with the default interpreter.
func NewProcessRuntime() *ProcessRuntime {
	return &ProcessRuntime{Interpreter: "python3", Path: "/usr/local/bin:/usr/bin:/bin"}
}

// Run implements Runtime. The child is placed in its own process group so a
// timeout or cancellation kills the whole tree, never just the shell.
func (r *ProcessRuntime) Run(ctx context.Context, spec RunSpec) (RunOutput, error) {
	interpreter := r.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	if _, err := exec.LookPath(interpreter); err != nil {
		return RunOutput{}, &SetupError{Stage: "interpreter", Err: err}
	}

	// ulimit -v expects KiB. exec keeps the limit across the interpreter.
	limitKB := spec.Limits.MaxMemoryMB * 1024
	shell := fmt.Sprintf("ulimit -v %d; exec %s %s", limitKB, interpreter, spec.ScriptPath)

	cmd := exec.Command("sh", "-c", shell)
	cmd.Dir = spec.Dir
	cmd.Env = r.buildEnv(spec)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return RunOutput{}, &SetupError{Stage: "start", Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			// Negative pid targets the whole process group.
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return RunOutput{}, ctx.Err()
	case waitErr = <-done:
	}

	out := RunOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if usage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok {
		// Maxrss is KiB on Linux.
		out.MemoryPeakMB = float64(usage.Maxrss) / 1024.0
	}

	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return out, &SetupError{Stage: "wait", Err: waitErr}
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return out, nil
}

// buildEnv constructs the allowlisted environment. The run starts from an
// empty environment; only PATH and the input/output channel variables are
// added. With networking disallowed, no proxy or credential variables can
// reach the script.
func (r *ProcessRuntime) buildEnv(spec RunSpec) []string {
	path := r.Path
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	env := []string{
		"PATH=" + path,
		"VEE_INPUT=" + spec.InputPath,
		"VEE_OUTPUT=" + spec.OutputPath,
		"HOME=" + spec.Dir,
	}
	if !spec.Limits.AllowNetwork {
		// Python's socket module honors no such switch; the offline guard is
		// injected into the script preamble by the executor. The variable is
		// still exported so scripts can fail fast on their own.
		env = append(env, "VEE_OFFLINE=1")
	}
	return env
}

// classifyExit maps a runtime outcome to the sandbox error taxonomy.
// SIGKILL without a preceding timeout and interpreter out-of-memory both
// count as resource breaches, not script bugs.
func classifyExit(out RunOutput) error {
	if out.ExitCode == 0 {
		return nil
	}
	stderr := string(out.Stderr)
	if out.ExitCode == 137 || strings.Contains(stderr, "MemoryError") || strings.Contains(stderr, "Cannot allocate memory") {
		return ErrResourceExceeded
	}
	return &ScriptError{ExitCode: out.ExitCode, Stderr: stderr}
}
