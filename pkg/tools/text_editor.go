package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"chartsmith/pkg/editor"
	"chartsmith/pkg/utils"
)

// viewTokenLimit bounds how much file content a single view returns to
// the model.
const viewTokenLimit = 4000

// TextEditorTool exposes view/create/str_replace file mutations to the LLM.
type TextEditorTool struct {
	backend      editor.FileMutationBackend
	workspaceID  string
	tokenCounter *utils.TokenCounter
}

// NewTextEditorTool creates a text editor tool bound to one workspace.
func NewTextEditorTool(backend editor.FileMutationBackend, workspaceID string) *TextEditorTool {
	// TokenCounter degrades to character-based estimation when the codec
	// cannot be constructed, so the error is not fatal here.
	counter, _ := utils.NewTokenCounter()
	return &TextEditorTool{
		backend:      backend,
		workspaceID:  workspaceID,
		tokenCounter: counter,
	}
}

// Name returns the tool name.
func (t *TextEditorTool) Name() string {
	return ToolTextEditor
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *TextEditorTool) PromptDocumentation() string {
	return `- **text_editor** - View, create, or edit a chart file
  - Parameters: command (view|create|str_replace, REQUIRED), path (string, REQUIRED), content (create only), old_str/new_str (str_replace only)
  - str_replace replaces the first occurrence of old_str; re-derive old_str from current content before retrying
  - Use view before str_replace to confirm the exact text to match`
}

func textEditorSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"command": {
				Type:        "string",
				Description: "The operation to perform",
				Enum:        []string{"view", "create", "str_replace"},
			},
			"path": {
				Type:        "string",
				Description: "Relative path to the file within the chart workspace",
			},
			"content": {
				Type:        "string",
				Description: "Full file content for the create command",
			},
			"old_str": {
				Type:        "string",
				Description: "Exact text to find for the str_replace command. Must match the file content including whitespace.",
			},
			"new_str": {
				Type:        "string",
				Description: "Replacement text for the str_replace command. Use empty string to delete the matched text.",
			},
		},
		Required: []string{"command", "path"},
	}
}

// Definition returns the tool definition for the LLM.
func (t *TextEditorTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolTextEditor,
		Description: "View, create, and edit files in the chart workspace. str_replace replaces the first occurrence of old_str with new_str.",
		InputSchema: textEditorSchema(),
	}
}

// Exec executes the tool with the given arguments.
func (t *TextEditorTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	command, ok := utils.SafeAssert[string](args["command"])
	if !ok || command == "" {
		return nil, fmt.Errorf("command is required and must be a string")
	}

	path, ok := utils.SafeAssert[string](args["path"])
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required and must be a string")
	}

	cleanPath := filepath.Clean(path)
	if strings.HasPrefix(cleanPath, "..") {
		return t.errorResult("path cannot contain directory traversal (..) attempts"), nil
	}

	switch command {
	case "view":
		return t.execView(ctx, cleanPath)
	case "create":
		content, ok := utils.SafeAssert[string](args["content"])
		if !ok {
			return nil, fmt.Errorf("content is required for create and must be a string")
		}
		return t.execCreate(ctx, cleanPath, content)
	case "str_replace":
		oldStr, ok := utils.SafeAssert[string](args["old_str"])
		if !ok || oldStr == "" {
			return nil, fmt.Errorf("old_str is required for str_replace and must be a non-empty string")
		}
		// new_str can be empty (deletion), so just check type
		newStr, ok := utils.SafeAssert[string](args["new_str"])
		if !ok {
			return nil, fmt.Errorf("new_str is required for str_replace and must be a string")
		}
		return t.execStrReplace(ctx, cleanPath, oldStr, newStr)
	default:
		return t.errorResult(fmt.Sprintf("unknown command %q, expected view, create, or str_replace", command)), nil
	}
}

func (t *TextEditorTool) execView(ctx context.Context, path string) (*ExecResult, error) {
	result, err := t.backend.View(ctx, t.workspaceID, path)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return t.errorResult(result.Error), nil
	}

	content := t.tokenCounter.TruncateToTokenLimit(result.Content, viewTokenLimit)
	return t.successResult(map[string]any{
		"success": true,
		"path":    path,
		"content": content,
	}), nil
}

func (t *TextEditorTool) execCreate(ctx context.Context, path, content string) (*ExecResult, error) {
	result, err := t.backend.Create(ctx, t.workspaceID, path, content)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return t.errorResult(result.Error), nil
	}

	return t.successResult(map[string]any{
		"success": true,
		"path":    path,
		"message": result.Message,
	}), nil
}

func (t *TextEditorTool) execStrReplace(ctx context.Context, path, oldStr, newStr string) (*ExecResult, error) {
	result, err := t.backend.StrReplace(ctx, t.workspaceID, path, oldStr, newStr)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return t.errorResult(result.Error), nil
	}

	return t.successResult(map[string]any{
		"success": true,
		"path":    path,
		"message": result.Message,
	}), nil
}

func (t *TextEditorTool) successResult(response map[string]any) *ExecResult {
	respJSON, _ := json.Marshal(response)
	return &ExecResult{Content: string(respJSON)}
}

func (t *TextEditorTool) errorResult(msg string) *ExecResult {
	response := map[string]any{
		"success": false,
		"error":   msg,
	}
	content, _ := json.Marshal(response)
	return &ExecResult{Content: string(content)}
}
