// Package cpm classifies zero-slack tasks and links via a forward and
// backward pass over the dependency DAG.
package cpm

import (
	"github.com/planwise/schedcore/internal/depgraph"
	"github.com/planwise/schedcore/internal/model"
)

// ErrCycle is re-exported so callers can test the classification error
// without importing depgraph.
var ErrCycle = depgraph.ErrCycle

// Result is the critical-path classification for one snapshot. It is
// derived data, recomputed whenever tasks or dependencies change, and
// never persisted. A cycle yields no Result at all; callers must treat
// that as "unknown, not none".
type Result struct {
	CriticalTaskIDs       map[string]bool
	CriticalDependencyIDs map[string]bool
	// Slack is each task's total float in days.
	Slack map[string]int
	// TotalDays is the project span along the longest path.
	TotalDays int
}

// schedule holds the per-task pass values in day offsets from project
// start. EF/LF are exclusive offsets: a 1-day task at the origin has
// ES 0, EF 1.
type schedule struct {
	es, ef int
	ls, lf int
}

// Classify computes each task's total float: earliest start/finish
// forward over the topological order, latest start/finish backward from
// the project end. Zero-float tasks are critical; a link is critical when
// both endpoints are critical and the link itself binds the successor.
func Classify(tasks []model.Task, deps []model.Dependency) (*Result, error) {
	g, err := depgraph.Build(tasks, deps)
	if err != nil {
		return nil, err
	}
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}

	durations := make(map[string]int, len(g.Tasks))
	for id, t := range g.Tasks {
		durations[id] = t.Duration()
	}

	sched := make(map[string]*schedule, len(order))
	for _, id := range order {
		sched[id] = &schedule{}
	}

	// Forward pass.
	for _, id := range order {
		s := sched[id]
		es := 0
		for _, dep := range g.Incoming[id] {
			p := sched[dep.PredecessorID]
			if min := earliestStart(dep, p, durations[id]); min > es {
				es = min
			}
		}
		s.es = es
		s.ef = es + durations[id]
	}

	total := 0
	for _, s := range sched {
		if s.ef > total {
			total = s.ef
		}
	}

	// Backward pass, in reverse topological order. Sinks finish at the
	// project end.
	outgoing := make(map[string][]model.Dependency)
	for _, dep := range g.Deps {
		outgoing[dep.PredecessorID] = append(outgoing[dep.PredecessorID], dep)
	}
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		s := sched[id]
		lf := total
		for _, dep := range outgoing[id] {
			succ := sched[dep.SuccessorID]
			if max := latestFinish(dep, succ, durations[id]); max < lf {
				lf = max
			}
		}
		s.lf = lf
		s.ls = lf - durations[id]
	}

	result := &Result{
		CriticalTaskIDs:       make(map[string]bool),
		CriticalDependencyIDs: make(map[string]bool),
		Slack:                 make(map[string]int, len(order)),
		TotalDays:             total,
	}
	for id, s := range sched {
		slack := s.ls - s.es
		result.Slack[id] = slack
		if slack == 0 {
			result.CriticalTaskIDs[id] = true
		}
	}
	for depID, dep := range g.Deps {
		if !result.CriticalTaskIDs[dep.PredecessorID] || !result.CriticalTaskIDs[dep.SuccessorID] {
			continue
		}
		if binds(dep, sched[dep.PredecessorID], sched[dep.SuccessorID]) {
			result.CriticalDependencyIDs[depID] = true
		}
	}
	return result, nil
}

// earliestStart is the minimum ES the link imposes on the successor.
func earliestStart(dep model.Dependency, pred *schedule, succDuration int) int {
	switch dep.Kind {
	case model.LinkStartToStart:
		return pred.es + dep.LagDays
	case model.LinkFinishToFinish:
		return pred.ef + dep.LagDays - succDuration
	case model.LinkStartToFinish:
		return pred.es + dep.LagDays - succDuration
	default: // finish_to_start
		return pred.ef + dep.LagDays
	}
}

// latestFinish is the maximum LF the link allows for the predecessor.
func latestFinish(dep model.Dependency, succ *schedule, predDuration int) int {
	switch dep.Kind {
	case model.LinkStartToStart:
		return succ.ls - dep.LagDays + predDuration
	case model.LinkFinishToFinish:
		return succ.lf - dep.LagDays
	case model.LinkStartToFinish:
		return succ.lf - dep.LagDays + predDuration
	default: // finish_to_start
		return succ.ls - dep.LagDays
	}
}

// binds reports whether the link actually drives the successor's
// earliest dates, as opposed to merely connecting two critical tasks.
func binds(dep model.Dependency, pred, succ *schedule) bool {
	switch dep.Kind {
	case model.LinkStartToStart:
		return pred.es+dep.LagDays == succ.es
	case model.LinkFinishToFinish:
		return pred.ef+dep.LagDays == succ.ef
	case model.LinkStartToFinish:
		return pred.es+dep.LagDays == succ.ef
	default:
		return pred.ef+dep.LagDays == succ.es
	}
}
