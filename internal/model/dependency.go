package model

import (
	"fmt"

	"github.com/google/uuid"
)

// LinkKind is the timing relationship a dependency imposes.
type LinkKind string

const (
	LinkFinishToStart  LinkKind = "finish_to_start"
	LinkStartToStart   LinkKind = "start_to_start"
	LinkFinishToFinish LinkKind = "finish_to_finish"
	LinkStartToFinish  LinkKind = "start_to_finish"
)

// IsValid reports whether the kind is a known value.
func (k LinkKind) IsValid() bool {
	switch k {
	case LinkFinishToStart, LinkStartToStart, LinkFinishToFinish, LinkStartToFinish:
		return true
	default:
		return false
	}
}

// Dependency is a directed link from a predecessor task to a successor
// task with an optional lag in days.
type Dependency struct {
	ID            string   `yaml:"id"`
	PredecessorID string   `yaml:"predecessor_id"`
	SuccessorID   string   `yaml:"successor_id"`
	Kind          LinkKind `yaml:"kind"`
	LagDays       int      `yaml:"lag_days,omitempty"`
}

// NewDependency creates a link with a fresh id. The kind defaults to
// finish-to-start when empty.
func NewDependency(predecessorID, successorID string, kind LinkKind, lagDays int) (Dependency, error) {
	if kind == "" {
		kind = LinkFinishToStart
	}
	d := Dependency{
		ID:            uuid.NewString(),
		PredecessorID: predecessorID,
		SuccessorID:   successorID,
		Kind:          kind,
		LagDays:       lagDays,
	}
	if err := d.Validate(); err != nil {
		return Dependency{}, err
	}
	return d, nil
}

// Validate rejects self-loops, missing endpoints, and unknown kinds.
func (d Dependency) Validate() error {
	if d.PredecessorID == "" || d.SuccessorID == "" {
		return fmt.Errorf("dependency %s: missing endpoint", d.ID)
	}
	if d.PredecessorID == d.SuccessorID {
		return fmt.Errorf("dependency %s: task %s cannot depend on itself", d.ID, d.SuccessorID)
	}
	if !d.Kind.IsValid() {
		return fmt.Errorf("dependency %s: invalid link kind %q", d.ID, d.Kind)
	}
	return nil
}
