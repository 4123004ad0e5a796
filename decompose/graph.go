// Package decompose splits compound queries into a dependency-ordered task
// graph. Comparison and sequencing cues in the query text drive the split;
// the resulting graph is validated for acyclicity before anything executes.
package decompose

import (
	"errors"
	"fmt"
)

// ErrUnsatisfiableQuery is returned when the task graph contains a cycle or
// references an unknown dependency. It is raised before any task executes;
// no partial execution is ever attempted.
var ErrUnsatisfiableQuery = errors.New("decompose: unsatisfiable query")

// DependencyGraph is a directed graph of task IDs. Sequencing and
// aggregation tasks depend on the tasks producing their operands.
//
// The graph preserves insertion order so topological sorting is fully
// deterministic: ties inside a wave break by the order tasks were added.
type DependencyGraph struct {
	order []string
	deps  map[string][]string
}

// NewDependencyGraph constructs an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{deps: make(map[string][]string)}
}

// Add registers a task and its dependencies. Adding the same id twice
// replaces its dependency list without changing its position.
func (g *DependencyGraph) Add(id string, dependsOn ...string) {
	if _, ok := g.deps[id]; !ok {
		g.order = append(g.order, id)
	}
	g.deps[id] = append([]string(nil), dependsOn...)
}

// Len returns the number of tasks in the graph.
func (g *DependencyGraph) Len() int { return len(g.order) }

// Dependencies returns the declared dependencies of id.
func (g *DependencyGraph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Waves computes the execution waves: each wave is a set of mutually
// independent tasks whose dependencies are all satisfied by earlier waves.
// The result is deterministic for any DAG. A cycle or an edge to an unknown
// task yields ErrUnsatisfiableQuery before any task could run.
func (g *DependencyGraph) Waves() ([][]string, error) {
	for id, deps := range g.deps {
		for _, dep := range deps {
			if _, ok := g.deps[dep]; !ok {
				return nil, fmt.Errorf("%w: task %s depends on unknown task %s", ErrUnsatisfiableQuery, id, dep)
			}
		}
	}

	remaining := make(map[string]int, len(g.order))
	for id, deps := range g.deps {
		remaining[id] = len(deps)
	}
	dependents := make(map[string][]string)
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	done := make(map[string]bool, len(g.order))
	var waves [][]string
	for len(done) < len(g.order) {
		var wave []string
		for _, id := range g.order {
			if !done[id] && remaining[id] == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			cycle := make([]string, 0, len(g.order)-len(done))
			for _, id := range g.order {
				if !done[id] {
					cycle = append(cycle, id)
				}
			}
			return nil, fmt.Errorf("%w: dependency cycle among %v", ErrUnsatisfiableQuery, cycle)
		}
		for _, id := range wave {
			done[id] = true
			for _, dependent := range dependents[id] {
				remaining[dependent]--
			}
		}
		waves = append(waves, wave)
	}
	return waves, nil
}

// TopologicalOrder flattens Waves into a single deterministic order.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	waves, err := g.Waves()
	if err != nil {
		return nil, err
	}
	var order []string
	for _, wave := range waves {
		order = append(order, wave...)
	}
	return order, nil
}
