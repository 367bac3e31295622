// Package plan implements the plan execution orchestrator: it consumes
// a bounded tool-call stream, applies file mutations, tracks per-file
// progress, and drives the plan status state machine.
package plan

import (
	"fmt"

	"chartsmith/pkg/persistence"
)

// validTransitions defines the plan status state machine. Entering
// applying is permitted only from draft or from a prior review (manual
// retry); applying acts as a mutex against concurrent re-entry.
//
//nolint:gochecknoglobals // Intentional package-level constant for state machine definition
var validTransitions = map[string][]string{
	persistence.PlanStatusDraft: {
		persistence.PlanStatusApplying,
	},
	persistence.PlanStatusApplying: {
		persistence.PlanStatusApplied, // run completed without unrecovered error
		persistence.PlanStatusReview,  // run failed, manual retry required
	},
	persistence.PlanStatusReview: {
		persistence.PlanStatusApplying, // manual retry
	},
	persistence.PlanStatusApplied: {
		// Terminal state - no outgoing transitions
	},
}

// IsValidTransition checks if a plan status transition is allowed.
func IsValidTransition(from, to string) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing an illegal transition.
func ValidateTransition(from, to string) error {
	if !IsValidTransition(from, to) {
		return fmt.Errorf("illegal plan status transition %s -> %s", from, to)
	}
	return nil
}

// ValidNextStatuses returns the statuses reachable from the given one.
func ValidNextStatuses(from string) []string {
	return validTransitions[from]
}
