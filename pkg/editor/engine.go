package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"chartsmith/pkg/helm"
	"chartsmith/pkg/logx"
	"chartsmith/pkg/metrics"
	"chartsmith/pkg/persistence"
)

const (
	// fuzzyThreshold is the minimum old_str length for the
	// case-insensitive fallback search. Shorter targets match
	// exact-case only.
	fuzzyThreshold = 50

	// logContextChars bounds the surrounding context captured in the
	// audit log on a successful replace.
	logContextChars = 100
)

// Engine is the store-backed FileMutationBackend.
type Engine struct {
	ops    *persistence.DatabaseOperations
	logger *logx.Logger
}

// NewEngine creates an engine over the given store operations.
func NewEngine(ops *persistence.DatabaseOperations) *Engine {
	return &Engine{
		ops:    ops,
		logger: logx.NewLogger("editor"),
	}
}

// View reads the latest content of a file.
func (e *Engine) View(_ context.Context, workspaceID, path string) (*MutationResult, error) {
	file, err := e.ops.GetFile(workspaceID, path)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return &MutationResult{
				Success: false,
				Code:    ErrorCodeNotFound,
				Error:   fmt.Sprintf("file %s does not exist", path),
			}, nil
		}
		return nil, fmt.Errorf("view %s: %w", path, err)
	}

	return &MutationResult{
		Success: true,
		Content: file.Content,
	}, nil
}

// Create inserts a new file at the workspace's current revision.
func (e *Engine) Create(_ context.Context, workspaceID, path, content string) (*MutationResult, error) {
	ws, err := e.ops.GetWorkspace(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("create %s: load workspace: %w", path, err)
	}

	if _, err := e.ops.GetFile(workspaceID, path); err == nil {
		return &MutationResult{
			Success: false,
			Code:    ErrorCodeAlreadyExists,
			Error:   fmt.Sprintf("file %s already exists, use str_replace to modify it", path),
		}, nil
	}

	revision := ws.CurrentRevision
	file := &persistence.WorkspaceFile{
		ID:             persistence.GenerateID(),
		WorkspaceID:    workspaceID,
		FilePath:       path,
		Content:        content,
		ChartID:        e.chartForMetadata(workspaceID, path, content),
		RevisionNumber: &revision,
	}
	if err := e.ops.InsertFile(file); err != nil {
		if errors.Is(err, persistence.ErrAlreadyExists) {
			return &MutationResult{
				Success: false,
				Code:    ErrorCodeAlreadyExists,
				Error:   fmt.Sprintf("file %s already exists, use str_replace to modify it", path),
			}, nil
		}
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	e.logger.Info("created file %s in workspace %s at revision %d", path, workspaceID, revision)
	return &MutationResult{
		Success: true,
		Content: content,
		Message: fmt.Sprintf("created %s", path),
	}, nil
}

// chartForMetadata records a chart row when the created file is a
// Chart.yaml with a parseable name, so later files can be grouped under
// it. Derivation is advisory: a malformed Chart.yaml still gets created
// as a plain file.
func (e *Engine) chartForMetadata(workspaceID, path, content string) *string {
	if path != helm.ChartMetadataFile && !strings.HasSuffix(path, "/"+helm.ChartMetadataFile) {
		return nil
	}
	meta, err := helm.ParseChartMetadata(content)
	if err != nil {
		e.logger.Warn("chart metadata at %s not parseable: %v", path, err)
		return nil
	}
	chart := &persistence.Chart{
		ID:          persistence.GenerateID(),
		WorkspaceID: workspaceID,
		Name:        meta.Name,
	}
	if err := e.ops.CreateChart(chart); err != nil {
		e.logger.Warn("failed to record chart %s: %v", meta.Name, err)
		return nil
	}
	e.logger.Info("registered chart %s in workspace %s", meta.Name, workspaceID)
	return &chart.ID
}

// StrReplace replaces the first occurrence of oldStr with newStr and
// writes an audit log entry for the attempt, matched or not.
func (e *Engine) StrReplace(_ context.Context, workspaceID, path, oldStr, newStr string) (*MutationResult, error) {
	file, err := e.ops.GetFile(workspaceID, path)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return &MutationResult{
				Success: false,
				Code:    ErrorCodeNotFound,
				Error:   fmt.Sprintf("file %s does not exist, use create instead", path),
			}, nil
		}
		return nil, fmt.Errorf("str_replace %s: %w", path, err)
	}

	start, matched, ok := findMatch(file.Content, oldStr)
	if !ok {
		errMsg := "old_str not found in file. Make sure it matches the file content exactly, including whitespace and indentation."
		entry := &persistence.ReplaceLogEntry{
			FilePath:     path,
			Found:        false,
			OldStr:       oldStr,
			NewStr:       newStr,
			OldStrLen:    len(oldStr),
			NewStrLen:    len(newStr),
			ErrorMessage: &errMsg,
		}
		if logErr := e.ops.InsertReplaceLog(entry); logErr != nil {
			return nil, fmt.Errorf("str_replace %s: write audit log: %w", path, logErr)
		}
		metrics.RecordReplaceAttempt(false)

		e.logger.Warn("str_replace on %s found no match for %d-char old_str", path, len(oldStr))
		return &MutationResult{
			Success: false,
			Code:    ErrorCodeNoMatch,
			Error:   errMsg,
		}, nil
	}

	newContent := file.Content[:start] + newStr + file.Content[start+len(matched):]

	// A successful replace supersedes any staged patch on the row.
	if err := e.ops.UpdateFileContent(file.ID, newContent, true); err != nil {
		return nil, fmt.Errorf("str_replace %s: persist content: %w", path, err)
	}

	before := file.Content[maxInt(0, start-logContextChars):start]
	afterStart := start + len(matched)
	after := file.Content[afterStart:minInt(len(file.Content), afterStart+logContextChars)]
	entry := &persistence.ReplaceLogEntry{
		FilePath:       path,
		Found:          true,
		OldStr:         oldStr,
		NewStr:         newStr,
		UpdatedContent: newContent,
		OldStrLen:      len(oldStr),
		NewStrLen:      len(newStr),
		ContextBefore:  &before,
		ContextAfter:   &after,
	}
	if err := e.ops.InsertReplaceLog(entry); err != nil {
		return nil, fmt.Errorf("str_replace %s: write audit log: %w", path, err)
	}
	metrics.RecordReplaceAttempt(true)

	e.logger.Info("replaced %d chars with %d chars in %s", len(oldStr), len(newStr), path)
	return &MutationResult{
		Success: true,
		Content: newContent,
		Message: fmt.Sprintf("replaced first occurrence in %s", path),
	}, nil
}

// findMatch locates the first occurrence of oldStr in content. Targets
// longer than fuzzyThreshold get a case-insensitive retry when the
// exact search misses; the originally-cased substring at the match
// position is what gets replaced.
func findMatch(content, oldStr string) (start int, matched string, ok bool) {
	if idx := strings.Index(content, oldStr); idx >= 0 {
		return idx, oldStr, true
	}

	if len(oldStr) <= fuzzyThreshold {
		return 0, "", false
	}

	lowered, offsets := foldForSearch(content)
	loweredOld := strings.ToLower(oldStr)
	idx := strings.Index(lowered, loweredOld)
	if idx < 0 {
		return 0, "", false
	}

	// Case folding can change rune byte lengths, so the lowered index
	// is mapped back to original byte offsets instead of reused directly.
	origStart := offsets[idx]
	origEnd := offsets[idx+len(loweredOld)]
	return origStart, content[origStart:origEnd], true
}

// foldForSearch lowercases content rune by rune and records, for every
// byte of the lowered text, the starting offset of the originating rune
// in the original content. A final entry maps the lowered end to
// len(content).
func foldForSearch(content string) (string, []int) {
	var b strings.Builder
	b.Grow(len(content))
	offsets := make([]int, 0, len(content)+1)
	for i, r := range content {
		lr := unicode.ToLower(r)
		for j := 0; j < utf8.RuneLen(lr); j++ {
			offsets = append(offsets, i)
		}
		b.WriteRune(lr)
	}
	offsets = append(offsets, len(content))
	return b.String(), offsets
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
