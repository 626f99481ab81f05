package constraint

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwise/schedcore/internal/logging"
	"github.com/planwise/schedcore/internal/model"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDay(s)
	require.NoError(t, err)
	return d
}

type fakeTasks struct {
	tasks map[string]model.Task
	err   error
}

func (f *fakeTasks) Task(id string) (model.Task, bool) {
	task, ok := f.tasks[id]
	return task, ok
}

func (f *fakeTasks) SetTaskDates(id string, start, end time.Time) error {
	if f.err != nil {
		return f.err
	}
	task := f.tasks[id]
	task.StartDate = start
	task.EndDate = end
	f.tasks[id] = task
	return nil
}

type fakeDemo struct {
	active bool
	err    error
	calls  int
}

func (f *fakeDemo) IsDemoActive(ctx context.Context) (bool, error) {
	f.calls++
	return f.active, f.err
}

type fakeCaps struct{ allow bool }

func (f fakeCaps) CanPerform(action string) bool { return f.allow }

type recordedMark struct {
	table   string
	id      string
	payload map[string]any
}

type fakeDirty struct{ marks []recordedMark }

func (f *fakeDirty) MarkDirty(table, recordID string, payload map[string]any) {
	f.marks = append(f.marks, recordedMark{table, recordID, payload})
}

func newTestEngine(t *testing.T, tasks map[string]model.Task, opts Options) (*Engine, *fakeDirty) {
	t.Helper()
	dirty := &fakeDirty{}
	opts.Dirty = dirty
	repo := &fakeTasks{tasks: tasks}
	return NewEngine(NewStore(), repo, opts, logging.Discard()), dirty
}

func oneTask(t *testing.T, id, start, end string) map[string]model.Task {
	t.Helper()
	return map[string]model.Task{
		id: {ID: id, Name: id, StartDate: day(t, start), EndDate: day(t, end)},
	}
}

func TestSaveConstraint_RoundTrip(t *testing.T) {
	e, dirty := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"), Options{})

	res := e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1",
		Type:   model.ConstraintMustStartOn,
		Date:   day(t, "2024-02-01"),
		Reason: "permit approval",
	})
	require.True(t, res.OK(), "save failed: %v", res.Err)

	got, ok := e.GetConstraint("t1")
	require.True(t, ok)
	assert.Equal(t, model.ConstraintMustStartOn, got.Type)
	assert.Equal(t, "permit approval", got.Reason)

	require.Len(t, dirty.marks, 1)
	mark := dirty.marks[0]
	assert.Equal(t, "schedule_constraints", mark.table)
	assert.Equal(t, "t1", mark.id)
	assert.Equal(t, "must_start_on", mark.payload["constraint_type"])
	assert.Equal(t, "2024-02-01", mark.payload["constraint_date"])
}

func TestSaveConstraint_Rejections(t *testing.T) {
	e, _ := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"), Options{})

	res := e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintNone, Date: day(t, "2024-02-01"),
	})
	assert.Error(t, res.Err, "type none is not saveable")

	res = e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "ghost", Type: model.ConstraintMustStartOn, Date: day(t, "2024-02-01"),
	})
	assert.ErrorIs(t, res.Err, ErrTaskNotFound)
}

func TestSaveConstraint_ReadOnlyCapability(t *testing.T) {
	e, dirty := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"),
		Options{Caps: fakeCaps{allow: false}})

	res := e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintMustStartOn, Date: day(t, "2024-02-01"),
	})
	assert.True(t, res.ReadOnly)
	assert.NoError(t, res.Err, "read-only is a state, not a failure")
	assert.False(t, res.OK())

	_, ok := e.GetConstraint("t1")
	assert.False(t, ok, "nothing stored in read-only mode")
	assert.Empty(t, dirty.marks)

	clr := e.ClearConstraint(context.Background(), "t1")
	assert.True(t, clr.ReadOnly)
}

func TestSaveConstraint_DemoTypeRestriction(t *testing.T) {
	e, _ := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"),
		Options{Demo: &fakeDemo{active: true}})

	res := e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintMustStartOn, Date: day(t, "2024-02-01"),
	})
	assert.ErrorIs(t, res.Err, ErrDemoRestricted)

	res = e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintStartNoEarlierThan, Date: day(t, "2024-02-01"),
	})
	require.True(t, res.OK(), "save failed: %v", res.Err)
	assert.True(t, res.Constraint.DemoFlagged, "demo saves are flagged")
}

func TestSaveConstraint_DemoCap(t *testing.T) {
	tasks := make(map[string]model.Task)
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("t%d", i)
		tasks[id] = model.Task{
			ID: id, StartDate: day(t, "2024-02-01"), EndDate: day(t, "2024-02-05"),
		}
	}
	e, _ := newTestEngine(t, tasks, Options{Demo: &fakeDemo{active: true}, DemoCap: 3})

	save := func(id string) SaveResult {
		return e.SaveConstraint(context.Background(), model.Constraint{
			TaskID: id, Type: model.ConstraintStartNoEarlierThan, Date: day(t, "2024-02-01"),
		})
	}

	for _, id := range []string{"t1", "t2", "t3"} {
		require.True(t, save(id).OK(), "task %s under the cap", id)
	}

	res := save("t4")
	assert.ErrorIs(t, res.Err, ErrDemoRestricted, "fourth constrained task exceeds the cap")

	// Re-saving an already constrained task never counts against the cap.
	assert.True(t, save("t2").OK())

	// Clearing one frees a slot.
	require.NoError(t, e.ClearConstraint(context.Background(), "t1").Err)
	assert.True(t, save("t4").OK())
}

func TestSaveConstraint_DemoCheckedEveryCall(t *testing.T) {
	demo := &fakeDemo{active: true}
	e, _ := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"),
		Options{Demo: demo})

	res := e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintMustFinishOn, Date: day(t, "2024-02-05"),
	})
	assert.ErrorIs(t, res.Err, ErrDemoRestricted)

	// The project was upgraded mid-session; the next save must see it.
	demo.active = false
	res = e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintMustFinishOn, Date: day(t, "2024-02-05"),
	})
	require.True(t, res.OK(), "save failed: %v", res.Err)
	assert.False(t, res.Constraint.DemoFlagged)
	assert.Equal(t, 2, demo.calls)

	demo.err = errors.New("status service down")
	res = e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintMustFinishOn, Date: day(t, "2024-02-05"),
	})
	assert.Error(t, res.Err, "unknown demo status blocks the save")
}

func TestClearConstraint(t *testing.T) {
	e, dirty := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"), Options{})

	require.NoError(t, e.ClearConstraint(context.Background(), "t1").Err)
	assert.Empty(t, dirty.marks, "clearing an absent constraint writes nothing")

	require.True(t, e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintMustStartOn, Date: day(t, "2024-02-01"),
	}).OK())
	require.NoError(t, e.ClearConstraint(context.Background(), "t1").Err)

	_, ok := e.GetConstraint("t1")
	assert.False(t, ok)

	last := dirty.marks[len(dirty.marks)-1]
	assert.Equal(t, "none", last.payload["constraint_type"], "the removal itself is persisted")
}

func TestCheckViolations(t *testing.T) {
	tests := []struct {
		name    string
		ctype   model.ConstraintType
		date    string
		violate bool
	}{
		{"must start on satisfied", model.ConstraintMustStartOn, "2024-02-01", false},
		{"must start on violated", model.ConstraintMustStartOn, "2024-02-03", true},
		{"must finish on satisfied", model.ConstraintMustFinishOn, "2024-02-05", false},
		{"must finish on violated", model.ConstraintMustFinishOn, "2024-02-04", true},
		{"start no earlier satisfied", model.ConstraintStartNoEarlierThan, "2024-01-28", false},
		{"start no earlier boundary", model.ConstraintStartNoEarlierThan, "2024-02-01", false},
		{"start no earlier violated", model.ConstraintStartNoEarlierThan, "2024-02-02", true},
		{"finish no later satisfied", model.ConstraintFinishNoLaterThan, "2024-02-06", false},
		{"finish no later boundary", model.ConstraintFinishNoLaterThan, "2024-02-05", false},
		{"finish no later violated", model.ConstraintFinishNoLaterThan, "2024-02-03", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"), Options{})
			require.True(t, e.SaveConstraint(context.Background(), model.Constraint{
				TaskID: "t1", Type: tt.ctype, Date: day(t, tt.date),
			}).OK())

			vs := e.CheckViolations("t1")
			if !tt.violate {
				assert.Empty(t, vs)
				return
			}
			require.Len(t, vs, 1)
			assert.Equal(t, model.ViolationDateConstraint, vs[0].Kind)
			assert.Equal(t, model.SeverityError, vs[0].Severity)
			assert.Equal(t, "t1", vs[0].TaskID)
			assert.Equal(t, tt.ctype, vs[0].ConstraintType)
		})
	}
}

func TestCheckViolations_NoConstraintOrUnknownTask(t *testing.T) {
	e, _ := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"), Options{})
	assert.Empty(t, e.CheckViolations("t1"))
	assert.Empty(t, e.CheckViolations("ghost"))
}

func TestEnforce_FinishNoLaterThanPreservesDuration(t *testing.T) {
	// A five-day task 2024-02-01..05 squeezed to finish by 2024-02-03
	// moves to 2024-01-30..2024-02-03.
	e, dirty := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"), Options{})
	require.True(t, e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintFinishNoLaterThan, Date: day(t, "2024-02-03"),
	}).OK())

	res, err := e.Enforce(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, day(t, "2024-01-30"), res.StartDate)
	assert.Equal(t, day(t, "2024-02-03"), res.EndDate)

	last := dirty.marks[len(dirty.marks)-1]
	assert.Equal(t, "schedules", last.table)
	assert.Equal(t, "2024-01-30", last.payload["start_date"])
	assert.Equal(t, "2024-02-03", last.payload["end_date"])
	assert.Equal(t, 5, last.payload["duration_days"])

	// A second pass finds the task compliant and leaves it alone.
	marksBefore := len(dirty.marks)
	res, err = e.Enforce(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Len(t, dirty.marks, marksBefore, "no write when nothing changed")
}

func TestEnforce_MustStartOn(t *testing.T) {
	e, _ := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-03"), Options{})
	require.True(t, e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintMustStartOn, Date: day(t, "2024-02-10"),
	}).OK())

	res, err := e.Enforce(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, day(t, "2024-02-10"), res.StartDate)
	assert.Equal(t, day(t, "2024-02-12"), res.EndDate)
}

func TestEnforce_NoConstraintOrSatisfied(t *testing.T) {
	e, dirty := newTestEngine(t, oneTask(t, "t1", "2024-02-01", "2024-02-05"), Options{})

	res, err := e.Enforce(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, day(t, "2024-02-01"), res.StartDate)

	require.True(t, e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintStartNoEarlierThan, Date: day(t, "2024-01-01"),
	}).OK())
	res, err = e.Enforce(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, res.Changed)

	assert.Len(t, dirty.marks, 1, "only the constraint save itself was marked")

	_, err = e.Enforce(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestEnforce_WriteBackFailure(t *testing.T) {
	repo := &fakeTasks{
		tasks: oneTask(t, "t1", "2024-02-01", "2024-02-05"),
		err:   errors.New("tasks locked"),
	}
	e := NewEngine(NewStore(), repo, Options{}, logging.Discard())
	require.True(t, e.SaveConstraint(context.Background(), model.Constraint{
		TaskID: "t1", Type: model.ConstraintMustStartOn, Date: day(t, "2024-03-01"),
	}).OK())

	_, err := e.Enforce(context.Background(), "t1")
	assert.ErrorContains(t, err, "tasks locked")
}
