package autosave

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/planwise/schedcore/internal/model"
)

// TableSchedules and TableConstraints are the table names the editor
// writes through the auto-save engine.
const (
	TableSchedules   = "schedules"
	TableConstraints = "schedule_constraints"
)

var fieldValidate = validator.New()

func checkDay(payload map[string]any, field string, errs []string) []string {
	v, ok := payload[field]
	if !ok {
		return errs
	}
	s, ok := v.(string)
	if !ok {
		return append(errs, fmt.Sprintf("%s must be a string date", field))
	}
	if err := fieldValidate.Var(s, "datetime=2006-01-02"); err != nil {
		return append(errs, fmt.Sprintf("%s must be formatted YYYY-MM-DD", field))
	}
	return errs
}

// ScheduleTable is the spec for task-bar records.
type ScheduleTable struct{}

func (ScheduleTable) Table() string      { return TableSchedules }
func (ScheduleTable) PrimaryKey() string { return "id" }

func (ScheduleTable) Fields() []string {
	return []string{"name", "start_date", "end_date", "duration_days", "status", "tags", "project_id"}
}

func (ScheduleTable) Validate(payload map[string]any) []string {
	var errs []string
	errs = checkDay(payload, "start_date", errs)
	errs = checkDay(payload, "end_date", errs)

	start, okS := payload["start_date"].(string)
	end, okE := payload["end_date"].(string)
	if okS && okE && len(errs) == 0 && end < start {
		errs = append(errs, "end_date must not precede start_date")
	}

	if v, ok := payload["status"]; ok {
		s, _ := v.(string)
		if !model.Status(s).IsValid() {
			errs = append(errs, fmt.Sprintf("unknown status %q", s))
		}
	}
	return errs
}

func (ScheduleTable) Transform(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	// Derive the duration when the edit supplied dates without one.
	if _, ok := out["duration_days"]; !ok {
		start, okS := out["start_date"].(string)
		end, okE := out["end_date"].(string)
		if okS && okE {
			s, errS := model.ParseDay(start)
			e, errE := model.ParseDay(end)
			if errS == nil && errE == nil {
				out["duration_days"] = model.DaysBetween(s, e) + 1
			}
		}
	}
	return out
}

// ConstraintTable is the spec for date-constraint records.
type ConstraintTable struct{}

func (ConstraintTable) Table() string      { return TableConstraints }
func (ConstraintTable) PrimaryKey() string { return "task_id" }

func (ConstraintTable) Fields() []string {
	return []string{"constraint_type", "constraint_date", "reason", "demo_flagged", "project_id"}
}

func (ConstraintTable) Validate(payload map[string]any) []string {
	var errs []string
	// Type none is allowed here: clearing a constraint persists it.
	if v, ok := payload["constraint_type"]; ok {
		s, _ := v.(string)
		if !model.ConstraintType(s).IsValid() {
			errs = append(errs, fmt.Sprintf("invalid constraint type %q", s))
		}
	}
	errs = checkDay(payload, "constraint_date", errs)
	return errs
}

func (ConstraintTable) Transform(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	if s, ok := out["reason"].(string); ok {
		out["reason"] = strings.TrimSpace(s)
	}
	if _, ok := out["demo_flagged"]; !ok {
		out["demo_flagged"] = false
	}
	return out
}

var (
	_ TableSpec = ScheduleTable{}
	_ TableSpec = ConstraintTable{}
)
