// Package editor implements the text mutation engine for workspace files:
// view, create, and str_replace operations with an audit log of every
// replacement attempt.
package editor

import "context"

// ErrorCode categorizes a failed mutation.
type ErrorCode string

const (
	// ErrorCodeNotFound means the target file has no current row.
	ErrorCodeNotFound ErrorCode = "not_found"
	// ErrorCodeAlreadyExists means create targeted a path with a current row.
	ErrorCodeAlreadyExists ErrorCode = "already_exists"
	// ErrorCodeNoMatch means str_replace could not locate old_str.
	ErrorCodeNoMatch ErrorCode = "no_match"
)

// MutationResult is the outcome of a single mutation operation. Domain
// failures (missing file, duplicate create, unmatched old_str) are
// reported here with Success=false so callers can relay them to the
// model; only infrastructure failures surface as Go errors.
type MutationResult struct {
	Success bool      `json:"success"`
	Content string    `json:"content,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`
}

// FileMutationBackend is the capability surface the plan orchestrator
// mutates files through. Implementations may be backed by the local
// store or by a remote editor service.
type FileMutationBackend interface {
	View(ctx context.Context, workspaceID, path string) (*MutationResult, error)
	Create(ctx context.Context, workspaceID, path, content string) (*MutationResult, error)
	StrReplace(ctx context.Context, workspaceID, path, oldStr, newStr string) (*MutationResult, error)
}
