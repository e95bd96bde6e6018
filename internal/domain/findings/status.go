package findings

import "fmt"

// Status represents the lifecycle state of a finding across scans.
type Status string

const (
	// StatusActive indicates the finding was observed by the most recent scan.
	StatusActive Status = "active"

	// StatusResolved indicates the finding stopped appearing in scans.
	StatusResolved Status = "resolved"

	// StatusFalsePositive indicates an external actor marked the finding as
	// not a real secret. Terminal for reconciliation purposes.
	StatusFalsePositive Status = "false_positive"

	// StatusIgnored indicates an external actor chose to stop tracking the
	// finding without judging its validity.
	StatusIgnored Status = "ignored"
)

func (s Status) String() string { return string(s) }

// ParseStatus converts a string to a Status. Unknown values map to the
// empty status.
func ParseStatus(s string) Status {
	switch s {
	case "active":
		return StatusActive
	case "resolved":
		return StatusResolved
	case "false_positive":
		return StatusFalsePositive
	case "ignored":
		return StatusIgnored
	default:
		return ""
	}
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s Status) ValidateTransition(target Status) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s, target)
	}
	return nil
}

// isValidTransition enforces the finding lifecycle rules. Reconciliation only
// ever moves findings between active and resolved; the remaining transitions
// require an explicit external action.
func (s Status) isValidTransition(target Status) bool {
	switch s {
	case StatusActive:
		return target == StatusResolved || target == StatusFalsePositive || target == StatusIgnored
	case StatusResolved:
		return target == StatusActive || target == StatusFalsePositive || target == StatusIgnored
	case StatusIgnored:
		// Ignored findings can be put back under tracking explicitly.
		return target == StatusActive
	case StatusFalsePositive:
		// Terminal. Reaching active again requires the explicit reopen
		// action on the entity, never a plain status update.
		return false
	default:
		return false
	}
}
