package plan

import (
	"testing"

	"chartsmith/pkg/persistence"
)

func TestPlanTransitions(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{persistence.PlanStatusDraft, persistence.PlanStatusApplying, true},
		{persistence.PlanStatusApplying, persistence.PlanStatusApplied, true},
		{persistence.PlanStatusApplying, persistence.PlanStatusReview, true},
		{persistence.PlanStatusReview, persistence.PlanStatusApplying, true},
		{persistence.PlanStatusDraft, persistence.PlanStatusApplied, false},
		{persistence.PlanStatusDraft, persistence.PlanStatusReview, false},
		{persistence.PlanStatusApplied, persistence.PlanStatusApplying, false},
		{persistence.PlanStatusApplied, persistence.PlanStatusReview, false},
		{persistence.PlanStatusReview, persistence.PlanStatusApplied, false},
		{persistence.PlanStatusApplying, persistence.PlanStatusDraft, false},
		{"bogus", persistence.PlanStatusApplying, false},
	}

	for _, tt := range tests {
		if got := IsValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(persistence.PlanStatusDraft, persistence.PlanStatusApplying); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateTransition(persistence.PlanStatusDraft, persistence.PlanStatusApplied); err == nil {
		t.Error("expected error for draft -> applied")
	}
}

func TestAppliedIsTerminal(t *testing.T) {
	if next := ValidNextStatuses(persistence.PlanStatusApplied); len(next) != 0 {
		t.Errorf("applied should be terminal, got next states %v", next)
	}
}
