package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a script exceeds its wall-clock limit. The
	// execution context is forcibly terminated and no partial output is ever
	// surfaced.
	ErrTimeout = errors.New("sandbox: execution timed out")

	// ErrResourceExceeded is returned when a run breaches its memory ceiling.
	// It is deliberately distinct from a script-level exception so infra
	// pressure is never mistaken for bad code.
	ErrResourceExceeded = errors.New("sandbox: resource limit exceeded")
)

// ScriptError describes an uncaught exception inside the script itself. It is
// recoverable in the sense that the pipeline proceeds to a gate rejection
// rather than tearing the query down.
type ScriptError struct {
	ExitCode int
	Stderr   string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("sandbox: script failed (exit %d): %s", e.ExitCode, truncate(e.Stderr, 300))
}

// SetupError indicates the sandbox itself could not be brought up (missing
// interpreter, container daemon unreachable, workdir not writable). Setup
// failures are retried with bounded backoff before becoming fatal.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("sandbox: setup failed at %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
