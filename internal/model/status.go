package model

import "fmt"

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
)

// IsValid reports whether the status is a known value. The empty string
// is accepted and treated as not started.
func (s Status) IsValid() bool {
	switch s {
	case "", StatusNotStarted, StatusInProgress, StatusOnHold, StatusCompleted:
		return true
	default:
		return false
	}
}

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
}

// Task status transitions: not_started → in_progress ↔ on_hold → completed
var validStatusTransitions = map[Status]map[Status]bool{
	StatusNotStarted: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusOnHold:    true,
		StatusCompleted: true,
	},
	StatusOnHold: {
		StatusInProgress: true,
	},
}

func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

func ValidateStatusTransition(from, to Status) error {
	if from == "" {
		from = StatusNotStarted
	}
	if from == to {
		return nil
	}
	if IsTerminal(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validStatusTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid status transition: %q → %q", from, to)
	}
	return nil
}
