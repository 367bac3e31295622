package patch

import (
	"context"
	"fmt"
	"strings"

	"chartsmith/pkg/logx"
	"chartsmith/pkg/metrics"
	"chartsmith/pkg/persistence"
)

// LocalIDPrefix marks ephemeral file identifiers that have never been
// persisted server-side. Such files are always merged locally.
const LocalIDPrefix = "local-"

// Authoritative is the server-side accept/reject surface. A failure on
// this path is absorbed by falling back to the local merge.
type Authoritative interface {
	AcceptFile(ctx context.Context, fileID string, revision int) error
	RejectFile(ctx context.Context, fileID string, revision int) error
}

// FileReport describes the outcome of one file in a bulk operation.
type FileReport struct {
	FileID   string `json:"fileId"`
	Path     string `json:"path"`
	Applied  bool   `json:"applied"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Coordinator merges or discards staged content, one file or a whole
// revision at a time, with a server-then-local fallback chain.
type Coordinator struct {
	ops           *persistence.DatabaseOperations
	authoritative Authoritative
	logger        *logx.Logger
}

// NewCoordinator creates a coordinator. authoritative may be nil, in
// which case every operation takes the local path directly.
func NewCoordinator(ops *persistence.DatabaseOperations, authoritative Authoritative) *Coordinator {
	return &Coordinator{
		ops:           ops,
		authoritative: authoritative,
		logger:        logx.NewLogger("patch"),
	}
}

// AcceptOne merges a file's pending content into its committed content.
// A file with no pending content is a no-op. Authoritative failures
// fall back to the local merge and are reported as degraded success.
func (c *Coordinator) AcceptOne(ctx context.Context, fileID string, revision int) (*persistence.WorkspaceFile, error) {
	file, err := c.ops.GetFileByID(fileID)
	if err != nil {
		return nil, fmt.Errorf("accept %s: %w", fileID, err)
	}
	if file.ContentPending == nil {
		return file, nil
	}

	if c.tryAuthoritative(ctx, "accept", file, revision) {
		metrics.RecordPatchOp("accept", "authoritative")
		return c.ops.GetFileByID(fileID)
	}

	pending := *file.ContentPending
	if err := c.ops.UpdateFileContent(file.ID, pending, true); err != nil {
		return nil, fmt.Errorf("accept %s: local merge: %w", file.FilePath, err)
	}
	metrics.RecordPatchOp("accept", "local")

	return c.ops.GetFileByID(fileID)
}

// RejectOne discards a file's pending content without touching its
// committed content. A file with no pending content is a no-op.
func (c *Coordinator) RejectOne(ctx context.Context, fileID string, revision int) (*persistence.WorkspaceFile, error) {
	file, err := c.ops.GetFileByID(fileID)
	if err != nil {
		return nil, fmt.Errorf("reject %s: %w", fileID, err)
	}
	if file.ContentPending == nil {
		return file, nil
	}

	if c.tryAuthoritative(ctx, "reject", file, revision) {
		metrics.RecordPatchOp("reject", "authoritative")
		return c.ops.GetFileByID(fileID)
	}

	if err := c.ops.ClearPendingContent(file.ID); err != nil {
		return nil, fmt.Errorf("reject %s: clear pending: %w", file.FilePath, err)
	}
	metrics.RecordPatchOp("reject", "local")

	return c.ops.GetFileByID(fileID)
}

// AcceptAll merges pending content for every file of the workspace with
// a staged patch. Best effort: a failing file is reported and the batch
// continues. Returns the updated files and a per-file report.
func (c *Coordinator) AcceptAll(ctx context.Context, workspaceID string, revision int) ([]*persistence.WorkspaceFile, []FileReport, error) {
	updated, reports, err := c.bulk(ctx, workspaceID, revision, c.AcceptOne)
	if err != nil {
		return nil, nil, err
	}

	// Accepting the whole pending set settles the workspace at the
	// caller's revision. Skipped when any file failed, so the workspace
	// never claims a revision it only partially holds.
	if revision > 0 && allApplied(reports) {
		if revErr := c.ops.SetWorkspaceRevision(workspaceID, revision); revErr != nil {
			c.logger.Error("failed to advance workspace %s to revision %d: %v", workspaceID, revision, revErr)
		}
	}
	return updated, reports, nil
}

func allApplied(reports []FileReport) bool {
	for _, report := range reports {
		if !report.Applied {
			return false
		}
	}
	return true
}

// RejectAll discards pending content for every file of the workspace
// with a staged patch, with the same best-effort semantics as AcceptAll.
func (c *Coordinator) RejectAll(ctx context.Context, workspaceID string, revision int) ([]*persistence.WorkspaceFile, []FileReport, error) {
	return c.bulk(ctx, workspaceID, revision, c.RejectOne)
}

func (c *Coordinator) bulk(ctx context.Context, workspaceID string, revision int, op func(context.Context, string, int) (*persistence.WorkspaceFile, error)) ([]*persistence.WorkspaceFile, []FileReport, error) {
	pending, err := c.ops.ListFilesWithPending(workspaceID)
	if err != nil {
		return nil, nil, fmt.Errorf("list pending files: %w", err)
	}

	updated := make([]*persistence.WorkspaceFile, 0, len(pending))
	reports := make([]FileReport, 0, len(pending))
	for _, file := range pending {
		report := FileReport{FileID: file.ID, Path: file.FilePath}
		result, opErr := op(ctx, file.ID, revision)
		if opErr != nil {
			report.Error = opErr.Error()
			c.logger.Error("bulk patch operation failed for %s: %v", file.FilePath, opErr)
		} else {
			report.Applied = true
			updated = append(updated, result)
		}
		reports = append(reports, report)
	}
	return updated, reports, nil
}

// tryAuthoritative attempts the server-side operation. Returns true on
// success; any failure is logged as a degraded fallback and never
// surfaced to the user.
func (c *Coordinator) tryAuthoritative(ctx context.Context, op string, file *persistence.WorkspaceFile, revision int) bool {
	if c.authoritative == nil {
		return false
	}
	if strings.HasPrefix(file.ID, LocalIDPrefix) {
		// Never persisted server-side; only the local merge applies.
		return false
	}

	var err error
	switch op {
	case "accept":
		err = c.authoritative.AcceptFile(ctx, file.ID, revision)
	case "reject":
		err = c.authoritative.RejectFile(ctx, file.ID, revision)
	}
	if err != nil {
		c.logger.Warn("authoritative %s failed for %s, falling back to local merge: %v", op, file.FilePath, err)
		return false
	}
	return true
}
