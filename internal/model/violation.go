package model

// Severity indicates whether a violation blocks or merely advises.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ViolationKind tags the two violation variants so consumers can switch
// exhaustively instead of probing optional fields.
type ViolationKind string

const (
	// ViolationDateConstraint means a task's dates disagree with its
	// date constraint. Carries TaskID and ConstraintType.
	ViolationDateConstraint ViolationKind = "date_constraint"
	// ViolationLinkOrder means a successor's dates do not respect its
	// predecessor plus lag. Carries DependencyID.
	ViolationLinkOrder ViolationKind = "link_order"
)

// Violation is a detected mismatch between required and actual scheduling
// state. Violations are derived data and are never persisted.
type Violation struct {
	Kind     ViolationKind
	Severity Severity
	Message  string

	// Set when Kind == ViolationDateConstraint.
	TaskID         string
	ConstraintType ConstraintType

	// Set when Kind == ViolationLinkOrder.
	DependencyID string
}

// NewDateConstraintViolation builds the date-constraint variant. Date
// constraint mismatches are always errors.
func NewDateConstraintViolation(taskID string, ct ConstraintType, message string) Violation {
	return Violation{
		Kind:           ViolationDateConstraint,
		Severity:       SeverityError,
		Message:        message,
		TaskID:         taskID,
		ConstraintType: ct,
	}
}

// NewLinkOrderViolation builds the link-order variant. Severity depends on
// whether constraint enforcement is on (error) or advisory (warning).
func NewLinkOrderViolation(dependencyID, message string, severity Severity) Violation {
	return Violation{
		Kind:         ViolationLinkOrder,
		Severity:     severity,
		Message:      message,
		DependencyID: dependencyID,
	}
}
