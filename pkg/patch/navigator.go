package patch

import (
	"fmt"

	"chartsmith/pkg/persistence"
)

// Navigator steps through the ordered list of files with pending
// patches. The index is circular: advancing past the last file wraps to
// the first and vice versa.
type Navigator struct {
	ops         *persistence.DatabaseOperations
	workspaceID string
	files       []*persistence.WorkspaceFile
	index       int
}

// NewNavigator creates a navigator and loads the current pending set.
func NewNavigator(ops *persistence.DatabaseOperations, workspaceID string) (*Navigator, error) {
	n := &Navigator{
		ops:         ops,
		workspaceID: workspaceID,
	}
	if err := n.Refresh(); err != nil {
		return nil, err
	}
	return n, nil
}

// Refresh reloads the pending file list, clamping the index to the new
// bounds.
func (n *Navigator) Refresh() error {
	files, err := n.ops.ListFilesWithPending(n.workspaceID)
	if err != nil {
		return fmt.Errorf("refresh pending files: %w", err)
	}
	n.files = files
	if n.index >= len(files) {
		n.index = 0
	}
	return nil
}

// Index returns the current cursor position.
func (n *Navigator) Index() int {
	return n.index
}

// Seek positions the cursor at index modulo the pending set size, so
// callers carrying the cursor across requests stay in bounds as the
// set shrinks or grows.
func (n *Navigator) Seek(index int) {
	if len(n.files) == 0 {
		n.index = 0
		return
	}
	n.index = ((index % len(n.files)) + len(n.files)) % len(n.files)
}

// Len returns the number of files with pending patches.
func (n *Navigator) Len() int {
	return len(n.files)
}

// Current returns the file at the navigation cursor, or nil when no
// files have pending patches.
func (n *Navigator) Current() *persistence.WorkspaceFile {
	if len(n.files) == 0 {
		return nil
	}
	return n.files[n.index]
}

// Next advances the cursor, wrapping past the last file.
func (n *Navigator) Next() *persistence.WorkspaceFile {
	if len(n.files) == 0 {
		return nil
	}
	n.index = (n.index + 1) % len(n.files)
	return n.files[n.index]
}

// Prev moves the cursor backwards, wrapping past the first file.
func (n *Navigator) Prev() *persistence.WorkspaceFile {
	if len(n.files) == 0 {
		return nil
	}
	n.index = (n.index - 1 + len(n.files)) % len(n.files)
	return n.files[n.index]
}

// CurrentDiff renders the diff between the current file's committed and
// pending content.
func (n *Navigator) CurrentDiff() []Hunk {
	file := n.Current()
	if file == nil || file.ContentPending == nil {
		return nil
	}
	return TextDiff(file.Content, *file.ContentPending)
}
