package task

import "sync"

// SharedState is the only concurrently mutated structure in the parallel
// layer: a lock-protected map from task id to published result. All mutation
// passes through Publish, so a reader either sees a complete result or none
// at all, never a partially written one.
//
// A SharedState is scoped to a single query's lifetime and passed by
// reference into each task.
type SharedState struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewSharedState constructs an empty state.
func NewSharedState() *SharedState {
	return &SharedState{results: make(map[string]Result)}
}

// Publish atomically stores a task's result, replacing any prior entry.
func (s *SharedState) Publish(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.TaskID] = res
}

// Get returns the published result for a task id.
func (s *SharedState) Get(taskID string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[taskID]
	return res, ok
}

// Snapshot returns a copy of all published results.
func (s *SharedState) Snapshot() map[string]Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Result, len(s.results))
	for id, res := range s.results {
		out[id] = res
	}
	return out
}

// Len returns the number of published results.
func (s *SharedState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
