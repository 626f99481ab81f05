// Package depgraph builds the dependency graph over a schedule snapshot
// and checks link-order consistency.
package depgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/planwise/schedcore/internal/model"
)

// ErrCycle is returned when the dependency graph is not a DAG.
var ErrCycle = errors.New("dependency graph has a cycle")

// Graph is a snapshot of tasks and links indexed for traversal.
type Graph struct {
	Tasks map[string]model.Task
	Deps  map[string]model.Dependency

	// Adj maps predecessor id to successor ids, RevAdj the reverse.
	Adj    map[string][]string
	RevAdj map[string][]string

	// Incoming maps successor id to the links that end at it.
	Incoming map[string][]model.Dependency
}

// Build indexes the snapshot. Links with invalid shape (self-loop, bad
// kind) are rejected; links naming unknown tasks are rejected as well so
// stale edits surface immediately.
func Build(tasks []model.Task, deps []model.Dependency) (*Graph, error) {
	g := &Graph{
		Tasks:    make(map[string]model.Task, len(tasks)),
		Deps:     make(map[string]model.Dependency, len(deps)),
		Adj:      make(map[string][]string),
		RevAdj:   make(map[string][]string),
		Incoming: make(map[string][]model.Dependency),
	}
	for _, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("task without id in snapshot")
		}
		g.Tasks[t.ID] = t
	}
	for _, d := range deps {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := g.Tasks[d.PredecessorID]; !ok {
			return nil, fmt.Errorf("dependency %s: unknown predecessor %s", d.ID, d.PredecessorID)
		}
		if _, ok := g.Tasks[d.SuccessorID]; !ok {
			return nil, fmt.Errorf("dependency %s: unknown successor %s", d.ID, d.SuccessorID)
		}
		g.Deps[d.ID] = d
		g.Adj[d.PredecessorID] = append(g.Adj[d.PredecessorID], d.SuccessorID)
		g.RevAdj[d.SuccessorID] = append(g.RevAdj[d.SuccessorID], d.PredecessorID)
		g.Incoming[d.SuccessorID] = append(g.Incoming[d.SuccessorID], d)
	}
	return g, nil
}

// TopoOrder returns a deterministic topological ordering via Kahn's
// algorithm, or ErrCycle. Classification must fail fast on a cycle, never
// loop.
func (g *Graph) TopoOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.Tasks))
	for id := range g.Tasks {
		inDegree[id] = len(g.RevAdj[id])
	}

	var queue []string
	for id := range g.Tasks {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var newReady []string
		for _, succ := range g.Adj[node] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				newReady = append(newReady, succ)
			}
		}
		sort.Strings(newReady)
		queue = append(queue, newReady...)
	}

	if len(order) != len(g.Tasks) {
		return nil, fmt.Errorf("%w (%d of %d tasks ordered)", ErrCycle, len(order), len(g.Tasks))
	}
	return order, nil
}
