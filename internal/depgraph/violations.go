package depgraph

import (
	"fmt"
	"time"

	"github.com/planwise/schedcore/internal/model"
)

// requiredStart returns the earliest start date the link allows for the
// successor, folding end-bound kinds through the successor's duration.
// Dates are inclusive, so a finish-to-start successor with zero lag may
// start the day after its predecessor ends.
func requiredStart(dep model.Dependency, pred, succ model.Task) time.Time {
	switch dep.Kind {
	case model.LinkFinishToStart:
		return model.AddDays(pred.EndDate, 1+dep.LagDays)
	case model.LinkStartToStart:
		return model.AddDays(pred.StartDate, dep.LagDays)
	case model.LinkFinishToFinish:
		minEnd := model.AddDays(pred.EndDate, dep.LagDays)
		return succ.StartForEnd(minEnd)
	case model.LinkStartToFinish:
		minEnd := model.AddDays(pred.StartDate, dep.LagDays)
		return succ.StartForEnd(minEnd)
	default:
		return model.AddDays(pred.EndDate, 1+dep.LagDays)
	}
}

// CheckLinkViolations compares each successor's actual dates against the
// timing its link requires and reports the links that fall short by one
// day or more. With enforce false the violations are advisory (warning,
// dashed-arrow styling); with enforce true they are errors and the caller
// is expected to run AdjustSuccessors and re-check.
func CheckLinkViolations(tasks []model.Task, deps []model.Dependency, enforce bool) []model.Violation {
	byID := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	severity := model.SeverityWarning
	if enforce {
		severity = model.SeverityError
	}

	var violations []model.Violation
	for _, dep := range deps {
		pred, okP := byID[dep.PredecessorID]
		succ, okS := byID[dep.SuccessorID]
		if !okP || !okS {
			continue
		}
		if pred.StartDate.IsZero() || pred.EndDate.IsZero() ||
			succ.StartDate.IsZero() || succ.EndDate.IsZero() {
			continue
		}

		minStart := requiredStart(dep, pred, succ)
		shortfall := model.DaysBetween(succ.StartDate, minStart)
		if shortfall <= 0 {
			continue
		}
		msg := fmt.Sprintf("task %s starts %d day(s) before its dependency on %s allows (earliest %s)",
			succ.ID, shortfall, pred.ID, model.FormatDay(minStart))
		violations = append(violations, model.NewLinkOrderViolation(dep.ID, msg, severity))
	}
	return violations
}

// Reschedule is a date change produced by the adjustment step, returned
// so callers can propagate it to dependents and the auto-save layer.
type Reschedule struct {
	TaskID    string
	StartDate time.Time
	EndDate   time.Time
}

// AdjustSuccessors shifts every violating successor forward to the
// earliest date its links allow, preserving duration, cascading in
// topological order so downstream tasks see their predecessors' new
// dates. Returns ErrCycle when the graph is not a DAG.
func AdjustSuccessors(tasks []model.Task, deps []model.Dependency) ([]Reschedule, error) {
	g, err := Build(tasks, deps)
	if err != nil {
		return nil, err
	}
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}

	working := make(map[string]model.Task, len(g.Tasks))
	for id, t := range g.Tasks {
		working[id] = t
	}

	var changes []Reschedule
	for _, id := range order {
		task := working[id]
		if task.StartDate.IsZero() || task.EndDate.IsZero() {
			continue
		}

		minStart := task.StartDate
		bound := false
		for _, dep := range g.Incoming[id] {
			pred := working[dep.PredecessorID]
			if pred.StartDate.IsZero() || pred.EndDate.IsZero() {
				continue
			}
			rs := requiredStart(dep, pred, task)
			if rs.After(minStart) {
				minStart = rs
				bound = true
			}
		}
		if !bound {
			continue
		}

		// Capture duration before touching the dates it may be derived from.
		dur := task.Duration()
		task.StartDate = minStart
		task.EndDate = model.AddDays(minStart, dur-1)
		working[id] = task
		changes = append(changes, Reschedule{
			TaskID:    id,
			StartDate: task.StartDate,
			EndDate:   task.EndDate,
		})
	}
	return changes, nil
}
