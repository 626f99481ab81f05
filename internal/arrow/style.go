package arrow

import "github.com/planwise/schedcore/internal/model"

// LinkStyle is the rendering hint for one dependency arrow.
type LinkStyle string

const (
	StyleViolation LinkStyle = "violation"
	StyleCritical  LinkStyle = "critical"
	StyleDefault   LinkStyle = "default"
)

// StyleFor picks exactly one style per link per render pass. Precedence:
// link-order violation > critical-path membership > default.
func StyleFor(dependencyID string, violations []model.Violation, criticalDependencyIDs map[string]bool) LinkStyle {
	for _, v := range violations {
		if v.Kind == model.ViolationLinkOrder && v.DependencyID == dependencyID {
			return StyleViolation
		}
	}
	if criticalDependencyIDs[dependencyID] {
		return StyleCritical
	}
	return StyleDefault
}
