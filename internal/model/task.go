// Package model defines the data structures shared by the scheduling
// engine: tasks, date constraints, dependency links, and violations.
package model

import (
	"fmt"
	"time"
)

// Task is a single bar on the schedule. Dates are inclusive: a one-day
// task starts and ends on the same date.
type Task struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	StartDate    time.Time `yaml:"start_date"`
	EndDate      time.Time `yaml:"end_date"`
	DurationDays int       `yaml:"duration_days,omitempty"`
	Status       Status    `yaml:"status"`
	Tags         []string  `yaml:"tags,omitempty"`
}

// Duration returns the task's duration in days. An explicit DurationDays
// wins; otherwise the duration is derived from the date span. A task with
// no usable information defaults to one day.
func (t Task) Duration() int {
	if t.DurationDays > 0 {
		return t.DurationDays
	}
	if !t.StartDate.IsZero() && !t.EndDate.IsZero() {
		if span := DaysBetween(t.StartDate, t.EndDate) + 1; span > 0 {
			return span
		}
	}
	return 1
}

// EndForStart returns the inclusive end date for the given start date,
// holding the task's duration fixed.
func (t Task) EndForStart(start time.Time) time.Time {
	return AddDays(start, t.Duration()-1)
}

// StartForEnd returns the start date for the given inclusive end date,
// holding the task's duration fixed.
func (t Task) StartForEnd(end time.Time) time.Time {
	return AddDays(end, -(t.Duration() - 1))
}

// Validate checks the task's date invariants: the end may not precede the
// start, and an authoritative duration must agree with the date span.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has no id")
	}
	if t.StartDate.IsZero() || t.EndDate.IsZero() {
		return nil
	}
	if t.EndDate.Before(NormalizeDay(t.StartDate)) {
		return fmt.Errorf("task %s: end date %s before start date %s",
			t.ID, FormatDay(t.EndDate), FormatDay(t.StartDate))
	}
	if t.DurationDays > 0 {
		if span := DaysBetween(t.StartDate, t.EndDate) + 1; span != t.DurationDays {
			return fmt.Errorf("task %s: duration %d days disagrees with date span %d days",
				t.ID, t.DurationDays, span)
		}
	}
	return nil
}
