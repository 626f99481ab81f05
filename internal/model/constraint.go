package model

import (
	"fmt"
	"time"
)

// ConstraintType pins a task's start or finish relative to a fixed date.
type ConstraintType string

const (
	ConstraintNone               ConstraintType = "none"
	ConstraintMustStartOn        ConstraintType = "must_start_on"
	ConstraintMustFinishOn       ConstraintType = "must_finish_on"
	ConstraintStartNoEarlierThan ConstraintType = "start_no_earlier_than"
	ConstraintFinishNoLaterThan  ConstraintType = "finish_no_later_than"
)

// IsValid reports whether the type is one of the known values.
func (ct ConstraintType) IsValid() bool {
	switch ct {
	case ConstraintNone, ConstraintMustStartOn, ConstraintMustFinishOn,
		ConstraintStartNoEarlierThan, ConstraintFinishNoLaterThan:
		return true
	default:
		return false
	}
}

// Label returns the human-readable name used by the presentation layer.
func (ct ConstraintType) Label() string {
	switch ct {
	case ConstraintMustStartOn:
		return "Must Start On"
	case ConstraintMustFinishOn:
		return "Must Finish On"
	case ConstraintStartNoEarlierThan:
		return "Start No Earlier Than"
	case ConstraintFinishNoLaterThan:
		return "Finish No Later Than"
	default:
		return "None"
	}
}

// Constraint is a date rule attached to a task. At most one constraint
// exists per task; the task id doubles as the constraint's identity.
type Constraint struct {
	TaskID      string         `yaml:"task_id"`
	Type        ConstraintType `yaml:"type"`
	Date        time.Time      `yaml:"date"`
	Reason      string         `yaml:"reason,omitempty"`
	DemoFlagged bool           `yaml:"demo_flagged,omitempty"`
}

// Validate checks that the constraint carries an active type and a date.
func (c Constraint) Validate() error {
	if c.TaskID == "" {
		return fmt.Errorf("constraint has no task id")
	}
	if !c.Type.IsValid() || c.Type == ConstraintNone {
		return fmt.Errorf("constraint for task %s: invalid type %q", c.TaskID, c.Type)
	}
	if c.Date.IsZero() {
		return fmt.Errorf("constraint for task %s: no date", c.TaskID)
	}
	return nil
}
