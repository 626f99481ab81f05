// Package constraint implements date-constraint rules for schedule tasks:
// saving and clearing constraints, detecting violations between a task's
// dates and its constraint, and enforcing a constraint by moving the task
// while preserving its duration.
package constraint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planwise/schedcore/internal/autosave"
	"github.com/planwise/schedcore/internal/events"
	"github.com/planwise/schedcore/internal/logging"
	"github.com/planwise/schedcore/internal/model"
)

// ActionEditConstraints is the capability gating constraint writes.
const ActionEditConstraints = "constraints.edit"

var (
	// ErrDemoRestricted wraps every refusal specific to demo projects.
	ErrDemoRestricted = errors.New("demo restriction")
	// ErrTaskNotFound is returned when an operation references an unknown
	// task.
	ErrTaskNotFound = errors.New("task not found")
)

// DemoChecker reports whether the current project runs in demo mode. The
// answer can change at any time (a demo can be upgraded mid-session), so
// the engine polls it on every save and never caches the result.
type DemoChecker interface {
	IsDemoActive(ctx context.Context) (bool, error)
}

// CapabilityChecker answers whether the current session may perform an
// action. A denial renders the engine read-only for that action; it is a
// state, not a failure.
type CapabilityChecker interface {
	CanPerform(action string) bool
}

// TaskRepo is the engine's window onto the session's tasks.
type TaskRepo interface {
	Task(id string) (model.Task, bool)
	SetTaskDates(id string, start, end time.Time) error
}

// DirtyMarker is the persistence boundary: the engine never writes to the
// remote store directly, it marks records dirty and lets the auto-save
// engine flush them.
type DirtyMarker interface {
	MarkDirty(table, recordID string, payload map[string]any)
}

// SaveResult is the typed outcome of SaveConstraint. Exactly one of the
// three shapes holds: saved (Constraint set), read-only (ReadOnly true),
// or rejected (Err set). Refusals are results, not panics.
type SaveResult struct {
	Constraint *model.Constraint
	ReadOnly   bool
	Err        error
}

// OK reports whether the constraint was saved.
func (r SaveResult) OK() bool { return r.Err == nil && !r.ReadOnly }

// EnforceResult carries the task's dates after enforcement and whether
// enforcement had to move the task.
type EnforceResult struct {
	TaskID    string
	StartDate time.Time
	EndDate   time.Time
	Changed   bool
}

// Engine applies constraint semantics for one editing session. Construct
// it per session and inject it; it is never a package-level singleton.
type Engine struct {
	store   *Store
	tasks   TaskRepo
	demo    DemoChecker
	caps    CapabilityChecker
	dirty   DirtyMarker
	bus     *events.Bus
	logger  *logging.Logger
	demoCap int
}

// Options carries the optional collaborators. Nil fields degrade safely:
// no demo checker means demo rules never apply, no capability checker
// means writes are allowed, no dirty marker or bus means those side
// effects are skipped.
type Options struct {
	Demo    DemoChecker
	Caps    CapabilityChecker
	Dirty   DirtyMarker
	Bus     *events.Bus
	DemoCap int
}

func NewEngine(store *Store, tasks TaskRepo, opts Options, logger *logging.Logger) *Engine {
	if opts.DemoCap <= 0 {
		opts.DemoCap = 3
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		store:   store,
		tasks:   tasks,
		demo:    opts.Demo,
		caps:    opts.Caps,
		dirty:   opts.Dirty,
		bus:     opts.Bus,
		logger:  logger,
		demoCap: opts.DemoCap,
	}
}

// SetDemoCap swaps the demo constrained-task cap, used by config hot
// reload.
func (e *Engine) SetDemoCap(n int) {
	if n > 0 {
		e.demoCap = n
	}
}

// GetConstraint returns the task's constraint, if any.
func (e *Engine) GetConstraint(taskID string) (model.Constraint, bool) {
	return e.store.Get(taskID)
}

// SaveConstraint validates and upserts a constraint, applying the demo
// gate when the project is a demo. On success the constraint is marked
// dirty for auto-save and a save event is published.
func (e *Engine) SaveConstraint(ctx context.Context, c model.Constraint) SaveResult {
	if e.caps != nil && !e.caps.CanPerform(ActionEditConstraints) {
		return SaveResult{ReadOnly: true}
	}

	c.Date = model.NormalizeDay(c.Date)
	if err := c.Validate(); err != nil {
		return SaveResult{Err: err}
	}
	if _, ok := e.tasks.Task(c.TaskID); !ok {
		return SaveResult{Err: fmt.Errorf("%w: %s", ErrTaskNotFound, c.TaskID)}
	}

	if e.demo != nil {
		active, err := e.demo.IsDemoActive(ctx)
		if err != nil {
			return SaveResult{Err: fmt.Errorf("check demo status: %w", err)}
		}
		if active {
			if c.Type != model.ConstraintStartNoEarlierThan {
				return SaveResult{Err: fmt.Errorf(
					"%w: only %s constraints are available in demo projects",
					ErrDemoRestricted, model.ConstraintStartNoEarlierThan.Label())}
			}
			if n := e.store.CountOther(c.TaskID); n >= e.demoCap {
				return SaveResult{Err: fmt.Errorf(
					"%w: demo projects allow at most %d constrained tasks",
					ErrDemoRestricted, e.demoCap)}
			}
			c.DemoFlagged = true
		}
	}

	e.store.Put(c)
	e.markConstraintDirty(c)
	if e.bus != nil {
		e.bus.Publish(events.EventConstraintSaved, c)
	}
	e.logger.Infof("constraint: saved %s on task %s for %s",
		c.Type, c.TaskID, model.FormatDay(c.Date))
	return SaveResult{Constraint: &c}
}

// ClearConstraint removes a task's constraint. Clearing a task with no
// constraint is a no-op. The removal itself is persisted, as a record
// with type none.
func (e *Engine) ClearConstraint(ctx context.Context, taskID string) SaveResult {
	if e.caps != nil && !e.caps.CanPerform(ActionEditConstraints) {
		return SaveResult{ReadOnly: true}
	}
	if _, ok := e.store.Get(taskID); !ok {
		return SaveResult{}
	}

	e.store.Delete(taskID)
	if e.dirty != nil {
		e.dirty.MarkDirty(autosave.TableConstraints, taskID, map[string]any{
			"constraint_type": string(model.ConstraintNone),
		})
	}
	if e.bus != nil {
		e.bus.Publish(events.EventConstraintCleared, taskID)
	}
	e.logger.Infof("constraint: cleared task %s", taskID)
	return SaveResult{}
}

// CheckViolations compares the task's current dates against its
// constraint. At most one violation is returned per task; a task without
// a constraint, or an unknown task, yields none.
func (e *Engine) CheckViolations(taskID string) []model.Violation {
	task, ok := e.tasks.Task(taskID)
	if !ok {
		return nil
	}
	c, ok := e.store.Get(taskID)
	if !ok {
		return nil
	}

	start := model.NormalizeDay(task.StartDate)
	end := model.NormalizeDay(task.EndDate)
	date := model.NormalizeDay(c.Date)

	var msg string
	switch c.Type {
	case model.ConstraintMustStartOn:
		if !start.Equal(date) {
			msg = fmt.Sprintf("must start on %s but starts %s",
				model.FormatDay(date), model.FormatDay(start))
		}
	case model.ConstraintMustFinishOn:
		if !end.Equal(date) {
			msg = fmt.Sprintf("must finish on %s but finishes %s",
				model.FormatDay(date), model.FormatDay(end))
		}
	case model.ConstraintStartNoEarlierThan:
		if start.Before(date) {
			msg = fmt.Sprintf("may not start before %s but starts %s",
				model.FormatDay(date), model.FormatDay(start))
		}
	case model.ConstraintFinishNoLaterThan:
		if end.After(date) {
			msg = fmt.Sprintf("must finish by %s but finishes %s",
				model.FormatDay(date), model.FormatDay(end))
		}
	}
	if msg == "" {
		return nil
	}
	return []model.Violation{
		model.NewDateConstraintViolation(taskID, c.Type,
			fmt.Sprintf("task %s %s", taskID, msg)),
	}
}

// Enforce moves a task to the nearest dates satisfying its constraint,
// preserving the task's duration. A task already satisfying its
// constraint, or without one, is left untouched and reported unchanged.
func (e *Engine) Enforce(ctx context.Context, taskID string) (*EnforceResult, error) {
	task, ok := e.tasks.Task(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	start := model.NormalizeDay(task.StartDate)
	end := model.NormalizeDay(task.EndDate)
	res := &EnforceResult{TaskID: taskID, StartDate: start, EndDate: end}

	c, ok := e.store.Get(taskID)
	if !ok {
		return res, nil
	}

	dur := task.Duration()
	date := model.NormalizeDay(c.Date)

	switch c.Type {
	case model.ConstraintMustStartOn:
		if !start.Equal(date) {
			res.StartDate = date
			res.EndDate = model.AddDays(date, dur-1)
			res.Changed = true
		}
	case model.ConstraintMustFinishOn:
		if !end.Equal(date) {
			res.EndDate = date
			res.StartDate = model.AddDays(date, -(dur - 1))
			res.Changed = true
		}
	case model.ConstraintStartNoEarlierThan:
		if start.Before(date) {
			res.StartDate = date
			res.EndDate = model.AddDays(date, dur-1)
			res.Changed = true
		}
	case model.ConstraintFinishNoLaterThan:
		if end.After(date) {
			res.EndDate = date
			res.StartDate = model.AddDays(date, -(dur - 1))
			res.Changed = true
		}
	}

	if !res.Changed {
		return res, nil
	}

	if err := e.tasks.SetTaskDates(taskID, res.StartDate, res.EndDate); err != nil {
		return nil, fmt.Errorf("enforce constraint on task %s: %w", taskID, err)
	}
	if e.dirty != nil {
		e.dirty.MarkDirty(autosave.TableSchedules, taskID, map[string]any{
			"start_date":    model.FormatDay(res.StartDate),
			"end_date":      model.FormatDay(res.EndDate),
			"duration_days": dur,
		})
	}
	if e.bus != nil {
		e.bus.Publish(events.EventTaskRescheduled, *res)
	}
	e.logger.Infof("constraint: enforced %s on task %s, now %s..%s",
		c.Type, taskID, model.FormatDay(res.StartDate), model.FormatDay(res.EndDate))
	return res, nil
}

func (e *Engine) markConstraintDirty(c model.Constraint) {
	if e.dirty == nil {
		return
	}
	e.dirty.MarkDirty(autosave.TableConstraints, c.TaskID, map[string]any{
		"constraint_type": string(c.Type),
		"constraint_date": model.FormatDay(c.Date),
		"reason":          c.Reason,
		"demo_flagged":    c.DemoFlagged,
	})
}
