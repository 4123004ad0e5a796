package contract

import "time"

// ExecutionResult captures the outcome of exactly one sandbox run. It is
// immutable: the executor constructs it once and no later stage may alter it.
//
// OutputValues holds only what the script published on its dedicated output
// channel; stdout noise never reaches this map. ScriptHash is the sha256 of
// the exact script text that ran, recorded so the gate and any later audit
// can re-verify provenance.
type ExecutionResult struct {
	OutputValues  map[string]float64 `json:"output_values"`
	ScriptHash    string             `json:"script_hash"`
	ExecutionTime time.Duration      `json:"execution_time_ms"`
	MemoryUsedMB  float64            `json:"memory_used_mb"`
	Succeeded     bool               `json:"succeeded"`
	Error         string             `json:"error,omitempty"`
}

// Values returns a copy of the output map so callers cannot mutate the
// result after the fact.
func (r ExecutionResult) Values() map[string]float64 {
	out := make(map[string]float64, len(r.OutputValues))
	for k, v := range r.OutputValues {
		out[k] = v
	}
	return out
}
