// Package task executes a dependency-ordered task graph in concurrent waves
// over shared, lock-protected state. Waves run sequentially; tasks inside a
// wave run concurrently and are fault-isolated from their siblings.
package task

import "errors"

// Status is the lifecycle state of one task.
type Status string

const (
	// StatusPending means the task has not started.
	StatusPending Status = "pending"
	// StatusRunning means the task is executing.
	StatusRunning Status = "running"
	// StatusDone means the task completed and published a result.
	StatusDone Status = "done"
	// StatusFailed means the task ran and failed on its own.
	StatusFailed Status = "failed"
	// StatusFailedByDependency means the task never ran because a dependency
	// failed. It is reported distinctly from StatusFailed.
	StatusFailedByDependency Status = "failed_by_dependency"
	// StatusCancelled means cancellation was observed before the task started.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusFailedByDependency, StatusCancelled:
		return true
	}
	return false
}

// ErrFailedByDependency marks results of tasks skipped because an upstream
// task failed. It is propagated, never retried.
var ErrFailedByDependency = errors.New("task: failed by dependency")

// ErrCancelled marks results of tasks that were never started because
// cancellation was observed first.
var ErrCancelled = errors.New("task: cancelled before start")

// Task is one executable node of the graph.
type Task struct {
	ID        string
	DependsOn []string
	// Aggregate marks a task that combines dependency outputs. Aggregators
	// still run when dependencies failed: they receive the partial inputs
	// plus a degraded-completeness flag instead of being silently skipped.
	Aggregate bool
	// Payload is opaque to the orchestrator and handed to the Runner.
	Payload any
}

// Result is the published outcome of one task.
type Result struct {
	TaskID string
	Status Status
	Value  any
	Err    error
	// Degraded is set on aggregator results computed from partial inputs.
	Degraded bool
}
