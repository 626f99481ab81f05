// Package session ties the engines together for one open schedule: tasks
// and links, the constraint engine, the auto-save engine, critical-path
// classification, and arrow geometry. Everything hangs off a Session
// value constructed per open project; there are no package-level
// singletons, so two schedules open side by side never share state.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/planwise/schedcore/internal/arrow"
	"github.com/planwise/schedcore/internal/autosave"
	"github.com/planwise/schedcore/internal/config"
	"github.com/planwise/schedcore/internal/constraint"
	"github.com/planwise/schedcore/internal/cpm"
	"github.com/planwise/schedcore/internal/depgraph"
	"github.com/planwise/schedcore/internal/events"
	"github.com/planwise/schedcore/internal/logging"
	"github.com/planwise/schedcore/internal/model"
	"github.com/planwise/schedcore/internal/store"
)

// Options carries the optional session collaborators.
type Options struct {
	Demo constraint.DemoChecker
	Caps constraint.CapabilityChecker
	// Bus, when nil, is created and owned by the session.
	Bus *events.Bus
}

// Recalculation is one snapshot of derived scheduling state: detected
// violations, any link-driven reschedules that were applied, and the
// critical-path classification. Critical is nil when the graph has a
// cycle; consumers must treat that as unknown rather than "nothing is
// critical".
type Recalculation struct {
	Violations  []model.Violation
	Reschedules []depgraph.Reschedule
	Critical    *cpm.Result
}

// Session is the editing context for one open schedule.
type Session struct {
	logger      *logging.Logger
	bus         *events.Bus
	ownBus      bool
	saver       *autosave.Engine
	constraints *constraint.Engine

	mu           sync.RWMutex
	tasks        map[string]model.Task
	deps         []model.Dependency
	last         *Recalculation
	enforceLinks bool
}

// New builds a session over the given store and starts its auto-save
// ticker. Callers own the store; the session owns the auto-save engine
// and, unless one is supplied, the event bus.
func New(cfg config.Config, st store.Store, logger *logging.Logger, opts Options) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	bus := opts.Bus
	ownBus := false
	if bus == nil {
		bus = events.NewBus(0)
		ownBus = true
	}

	saver := autosave.New(st, autosave.DefaultRegistry(), autosave.Options{
		Debounce:      cfg.AutoSave.Debounce(),
		FlushInterval: cfg.AutoSave.FlushInterval(),
		MaxRetries:    cfg.AutoSave.MaxRetries,
		RetryDelay:    cfg.AutoSave.RetryDelay(),
	}, logger)
	saver.SetEventBus(bus)
	saver.Start()

	s := &Session{
		logger:       logger,
		bus:          bus,
		ownBus:       ownBus,
		saver:        saver,
		tasks:        make(map[string]model.Task),
		enforceLinks: cfg.Project.EnforceLinks,
	}
	s.constraints = constraint.NewEngine(constraint.NewStore(), s, constraint.Options{
		Demo:    opts.Demo,
		Caps:    opts.Caps,
		Dirty:   saver,
		Bus:     bus,
		DemoCap: cfg.Demo.MaxConstrainedTasks,
	}, logger)
	return s
}

// ApplyConfig swaps the reloadable tunables, used by config hot reload.
// Tasks and constraints are untouched.
func (s *Session) ApplyConfig(cfg config.Config) {
	s.saver.SetOptions(autosave.Options{
		Debounce:      cfg.AutoSave.Debounce(),
		FlushInterval: cfg.AutoSave.FlushInterval(),
		MaxRetries:    cfg.AutoSave.MaxRetries,
		RetryDelay:    cfg.AutoSave.RetryDelay(),
	})
	s.constraints.SetDemoCap(cfg.Demo.MaxConstrainedTasks)
	s.mu.Lock()
	s.enforceLinks = cfg.Project.EnforceLinks
	s.mu.Unlock()
	s.logger.Infof("session: config applied, enforce_links=%v", cfg.Project.EnforceLinks)
}

// AddTask registers a task with the session and schedules its first
// persistence.
func (s *Session) AddTask(t model.Task) error {
	t.StartDate = model.NormalizeDay(t.StartDate)
	t.EndDate = model.NormalizeDay(t.EndDate)
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	s.markTaskDirty(t)
	return nil
}

// Task returns one task by id.
func (s *Session) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks returns the session's tasks ordered by start date, then id.
func (s *Session) Tasks() []model.Task {
	s.mu.RLock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetTaskDates moves a task, keeping its stored duration in sync with the
// new span. It is the write path used both by direct edits and by
// constraint enforcement.
func (s *Session) SetTaskDates(id string, start, end time.Time) error {
	start = model.NormalizeDay(start)
	end = model.NormalizeDay(end)
	if end.Before(start) {
		return fmt.Errorf("task %s: end date %s before start date %s",
			id, model.FormatDay(end), model.FormatDay(start))
	}

	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", constraint.ErrTaskNotFound, id)
	}
	t.StartDate = start
	t.EndDate = end
	t.DurationDays = model.DaysBetween(start, end) + 1
	s.tasks[id] = t
	s.mu.Unlock()

	s.markTaskDirty(t)
	return nil
}

// UpdateTaskDates is the drag/resize entry point: it moves the task and
// publishes the reschedule.
func (s *Session) UpdateTaskDates(ctx context.Context, id string, start, end time.Time) error {
	if err := s.SetTaskDates(id, start, end); err != nil {
		return err
	}
	t, _ := s.Task(id)
	s.bus.Publish(events.EventTaskRescheduled, depgraph.Reschedule{
		TaskID:    id,
		StartDate: t.StartDate,
		EndDate:   t.EndDate,
	})
	return nil
}

// SetTaskStatus applies a status change, rejecting transitions the status
// machine does not allow.
func (s *Session) SetTaskStatus(id string, status model.Status) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", constraint.ErrTaskNotFound, id)
	}
	if err := model.ValidateStatusTransition(t.Status, status); err != nil {
		s.mu.Unlock()
		return err
	}
	t.Status = status
	s.tasks[id] = t
	s.mu.Unlock()

	s.saver.MarkDirty(autosave.TableSchedules, id, map[string]any{
		"status": string(status),
	})
	return nil
}

// AddDependency links two tasks, rejecting self-loops, unknown endpoints,
// and links that would close a cycle.
func (s *Session) AddDependency(predecessorID, successorID string, kind model.LinkKind, lagDays int) (model.Dependency, error) {
	dep, err := model.NewDependency(predecessorID, successorID, kind, lagDays)
	if err != nil {
		return model.Dependency{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := append(append([]model.Dependency(nil), s.deps...), dep)
	if err := s.checkAcyclicLocked(candidate); err != nil {
		return model.Dependency{}, err
	}
	s.deps = candidate
	return dep, nil
}

// SetDependencies replaces the link set wholesale, as when loading a
// project. The whole set is rejected if any link is invalid or the graph
// has a cycle.
func (s *Session) SetDependencies(deps []model.Dependency) error {
	for _, d := range deps {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAcyclicLocked(deps); err != nil {
		return err
	}
	s.deps = append([]model.Dependency(nil), deps...)
	return nil
}

// Dependencies returns a copy of the session's links.
func (s *Session) Dependencies() []model.Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Dependency(nil), s.deps...)
}

func (s *Session) checkAcyclicLocked(deps []model.Dependency) error {
	tasks := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	g, err := depgraph.Build(tasks, deps)
	if err != nil {
		return err
	}
	if _, err := g.TopoOrder(); err != nil {
		return err
	}
	return nil
}

// SaveConstraint delegates to the constraint engine.
func (s *Session) SaveConstraint(ctx context.Context, c model.Constraint) constraint.SaveResult {
	return s.constraints.SaveConstraint(ctx, c)
}

// ClearConstraint delegates to the constraint engine.
func (s *Session) ClearConstraint(ctx context.Context, taskID string) constraint.SaveResult {
	return s.constraints.ClearConstraint(ctx, taskID)
}

// Constraint returns a task's constraint, if any.
func (s *Session) Constraint(taskID string) (model.Constraint, bool) {
	return s.constraints.GetConstraint(taskID)
}

// EnforceConstraint moves a task onto its constraint, preserving
// duration.
func (s *Session) EnforceConstraint(ctx context.Context, taskID string) (*constraint.EnforceResult, error) {
	return s.constraints.Enforce(ctx, taskID)
}

// Recalculate recomputes all derived scheduling state: date-constraint
// violations, link-order violations, link-driven reschedules when
// enforcement is on, and the critical path. The result is cached for
// ArrowFor and published on the bus.
func (s *Session) Recalculate(ctx context.Context) *Recalculation {
	s.mu.RLock()
	tasks := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	deps := append([]model.Dependency(nil), s.deps...)
	enforce := s.enforceLinks
	s.mu.RUnlock()

	rec := &Recalculation{}

	for _, t := range tasks {
		rec.Violations = append(rec.Violations, s.constraints.CheckViolations(t.ID)...)
	}

	if enforce {
		changes, err := depgraph.AdjustSuccessors(tasks, deps)
		if err != nil {
			s.logger.Warnf("session: link adjustment skipped: %v", err)
		} else {
			for _, ch := range changes {
				if err := s.SetTaskDates(ch.TaskID, ch.StartDate, ch.EndDate); err != nil {
					s.logger.Errorf("session: apply reschedule for %s: %v", ch.TaskID, err)
					continue
				}
				rec.Reschedules = append(rec.Reschedules, ch)
				s.bus.Publish(events.EventTaskRescheduled, ch)
			}
			if len(changes) > 0 {
				tasks = tasks[:0]
				s.mu.RLock()
				for _, t := range s.tasks {
					tasks = append(tasks, t)
				}
				s.mu.RUnlock()
			}
		}
	}

	// With enforcement on the remaining link violations are errors: the
	// adjustment above should have cleared them, so anything left means
	// an unresolvable graph.
	rec.Violations = append(rec.Violations,
		depgraph.CheckLinkViolations(tasks, deps, enforce)...)

	critical, err := cpm.Classify(tasks, deps)
	if err != nil {
		s.logger.Warnf("session: critical path unavailable: %v", err)
	} else {
		rec.Critical = critical
	}

	s.mu.Lock()
	s.last = rec
	s.mu.Unlock()

	s.bus.Publish(events.EventScheduleRecalculated, *rec)
	return rec
}

// ArrowFor computes the render geometry and style for one link, using the
// latest recalculation for violation and critical-path styling. Call
// Recalculate first; without one every arrow renders with the default
// style.
func (s *Session) ArrowFor(dependencyID string, predRect, succRect arrow.Rect) (arrow.Coordinates, arrow.LinkStyle, error) {
	s.mu.RLock()
	var dep *model.Dependency
	for i := range s.deps {
		if s.deps[i].ID == dependencyID {
			dep = &s.deps[i]
			break
		}
	}
	last := s.last
	s.mu.RUnlock()

	if dep == nil {
		return arrow.Coordinates{}, arrow.StyleDefault,
			fmt.Errorf("unknown dependency %s", dependencyID)
	}

	var violations []model.Violation
	var critical map[string]bool
	if last != nil {
		violations = last.Violations
		if last.Critical != nil {
			critical = last.Critical.CriticalDependencyIDs
		}
	}

	coords := arrow.Build(dep.Kind, predRect, succRect)
	return coords, arrow.StyleFor(dependencyID, violations, critical), nil
}

// AutoSaveState returns the auto-save snapshot for status display.
func (s *Session) AutoSaveState() autosave.State {
	return s.saver.State()
}

// SubscribeAutoSave registers an auto-save observer; the returned
// unregister function is idempotent.
func (s *Session) SubscribeAutoSave(fn func(autosave.State)) func() {
	return s.saver.Subscribe(fn)
}

// ForceSave flushes pending changes immediately.
func (s *Session) ForceSave(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Bus exposes the session's event bus for presentation-layer
// subscriptions.
func (s *Session) Bus() *events.Bus {
	return s.bus
}

// Close flushes pending changes and stops the background machinery. The
// session must not be used afterwards.
func (s *Session) Close(ctx context.Context) error {
	err := s.saver.ForceSave(ctx)
	s.saver.Stop()
	if s.ownBus {
		s.bus.Close()
	}
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *Session) markTaskDirty(t model.Task) {
	s.saver.MarkDirty(autosave.TableSchedules, t.ID, map[string]any{
		"name":          t.Name,
		"start_date":    model.FormatDay(t.StartDate),
		"end_date":      model.FormatDay(t.EndDate),
		"duration_days": t.Duration(),
		"status":        string(t.Status),
	})
}
