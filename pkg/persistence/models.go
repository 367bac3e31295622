package persistence

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is the top-level container for charts and loose files.
type Workspace struct {
	CreatedAt       time.Time `json:"created_at"`
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CurrentRevision int       `json:"current_revision"`
}

// Chart groups workspace files belonging to one Helm chart.
type Chart struct {
	CreatedAt   time.Time `json:"created_at"`
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
}

// WorkspaceFile is one versioned file row. The latest row per
// (workspace_id, file_path) is the one with the highest non-null
// revision number. ContentPending == nil means no staged patch exists.
//
//nolint:govet // struct alignment optimization not critical for this type
type WorkspaceFile struct {
	ID             string  `json:"id"`
	WorkspaceID    string  `json:"workspace_id"`
	ChartID        *string `json:"chart_id,omitempty"`
	FilePath       string  `json:"file_path"`
	Content        string  `json:"content"`
	ContentPending *string `json:"content_pending,omitempty"`
	RevisionNumber *int    `json:"revision_number,omitempty"`
}

// HasPendingPatch reports whether staged content exists for this file.
func (f *WorkspaceFile) HasPendingPatch() bool {
	return f.ContentPending != nil
}

// Plan is a proposed set of file changes tracked through an execution
// state machine.
//
//nolint:govet // struct alignment optimization not critical for this type
type Plan struct {
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ProceedAt   *time.Time   `json:"proceed_at,omitempty"`
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspace_id"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	ActionFiles []ActionFile `json:"action_files,omitempty"`
	ChatIDs     []string     `json:"chat_ids,omitempty"`
}

// ActionFile is one file's tracked lifecycle status within a plan run.
type ActionFile struct {
	Path   string `json:"path"`
	Action string `json:"action"`
	Status string `json:"status"`
}

// ReplaceLogEntry is an immutable audit record written on every
// str_replace attempt, success or failure.
//
//nolint:govet // struct alignment optimization not critical for this type
type ReplaceLogEntry struct {
	CreatedAt      time.Time `json:"created_at"`
	ID             string    `json:"id"`
	FilePath       string    `json:"file_path"`
	Found          bool      `json:"found"`
	OldStr         string    `json:"old_str"`
	NewStr         string    `json:"new_str"`
	UpdatedContent string    `json:"updated_content"`
	OldStrLen      int       `json:"old_str_len"`
	NewStrLen      int       `json:"new_str_len"`
	ContextBefore  *string   `json:"context_before,omitempty"`
	ContextAfter   *string   `json:"context_after,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
}

// Plan status constants.
const (
	PlanStatusDraft    = "draft"
	PlanStatusApplying = "applying"
	PlanStatusApplied  = "applied"
	PlanStatusReview   = "review"
)

// Action file status constants.
const (
	ActionFileStatusPending  = "pending"
	ActionFileStatusCreating = "creating"
	ActionFileStatusCreated  = "created"
)

// Action file action constants.
const (
	ActionFileActionCreate = "create"
	ActionFileActionUpdate = "update"
)

// ValidPlanStatuses returns all valid plan statuses.
func ValidPlanStatuses() []string {
	return []string{PlanStatusDraft, PlanStatusApplying, PlanStatusApplied, PlanStatusReview}
}

// IsValidPlanStatus checks if a plan status string is valid.
func IsValidPlanStatus(status string) bool {
	for _, s := range ValidPlanStatuses() {
		if status == s {
			return true
		}
	}
	return false
}

// IsValidActionFileStatus checks if an action file status string is valid.
func IsValidActionFileStatus(status string) bool {
	switch status {
	case ActionFileStatusPending, ActionFileStatusCreating, ActionFileStatusCreated:
		return true
	}
	return false
}

// GenerateID generates a new UUID for any persisted record.
func GenerateID() string {
	return uuid.New().String()
}
