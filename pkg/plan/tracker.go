package plan

import (
	"fmt"

	"chartsmith/pkg/logx"
	"chartsmith/pkg/persistence"
)

// Tracker maintains the per-file lifecycle status for one plan run and
// the single "active file" pointer. Only one file is shown in progress
// at a time even when the upstream model interleaves calls; a file
// displaced before reaching created is demoted back to pending.
type Tracker struct {
	ops        *persistence.DatabaseOperations
	logger     *logx.Logger
	planID     string
	actions    map[string]string // path -> action (create|update)
	statuses   map[string]string // path -> status
	activePath *string
}

// NewTracker creates a tracker for one plan run.
func NewTracker(ops *persistence.DatabaseOperations, planID string) *Tracker {
	return &Tracker{
		ops:      ops,
		logger:   logx.NewLogger("tracker"),
		planID:   planID,
		actions:  make(map[string]string),
		statuses: make(map[string]string),
	}
}

// Seed registers an expected path as pending. First registration
// persists an action-file row so the UI can render the full expected
// list before any mutation occurs.
func (t *Tracker) Seed(path, action string) error {
	if _, ok := t.statuses[path]; ok {
		return nil
	}
	t.actions[path] = action
	t.statuses[path] = persistence.ActionFileStatusPending
	if err := t.ops.AddOrUpdateActionFile(t.planID, path, action, persistence.ActionFileStatusPending); err != nil {
		return fmt.Errorf("seed action file %s: %w", path, err)
	}
	return nil
}

// Activate marks a path as the single in-progress file. If a different
// file is currently active and has not reached created, it is demoted
// back to pending first. Paths not pre-seeded are added implicitly.
func (t *Tracker) Activate(path, action string) error {
	if t.activePath != nil && *t.activePath != path {
		prev := *t.activePath
		if t.statuses[prev] != persistence.ActionFileStatusCreated {
			t.logger.Debug("demoting %s back to pending, %s became active", prev, path)
			if err := t.setStatus(prev, persistence.ActionFileStatusPending); err != nil {
				return err
			}
		}
	}

	if _, ok := t.statuses[path]; !ok {
		t.actions[path] = action
	}
	if err := t.setStatus(path, persistence.ActionFileStatusCreating); err != nil {
		return err
	}
	t.activePath = &path
	return nil
}

// Complete marks the active path created and clears the active pointer.
func (t *Tracker) Complete(path string) error {
	if err := t.setStatus(path, persistence.ActionFileStatusCreated); err != nil {
		return err
	}
	if t.activePath != nil && *t.activePath == path {
		t.activePath = nil
	}
	return nil
}

// Status returns the tracked status for a path, or "" if unknown.
func (t *Tracker) Status(path string) string {
	return t.statuses[path]
}

// ActivePath returns the currently active path, or nil.
func (t *Tracker) ActivePath() *string {
	return t.activePath
}

// Paths returns all tracked paths.
func (t *Tracker) Paths() []string {
	paths := make([]string, 0, len(t.statuses))
	for path := range t.statuses {
		paths = append(paths, path)
	}
	return paths
}

func (t *Tracker) setStatus(path, status string) error {
	action, ok := t.actions[path]
	if !ok {
		action = persistence.ActionFileActionUpdate
		t.actions[path] = action
	}
	t.statuses[path] = status
	if err := t.ops.AddOrUpdateActionFile(t.planID, path, action, status); err != nil {
		return fmt.Errorf("update action file %s to %s: %w", path, status, err)
	}
	return nil
}
