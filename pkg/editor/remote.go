package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chartsmith/pkg/logx"
)

// mutationRequest is the wire shape for the remote editor service.
type mutationRequest struct {
	Command     string `json:"command"`
	WorkspaceID string `json:"workspaceId"`
	Path        string `json:"path"`
	Content     string `json:"content,omitempty"`
	OldStr      string `json:"oldStr,omitempty"`
	NewStr      string `json:"newStr,omitempty"`
}

// RemoteBackend dispatches mutation operations to a separate editor
// process over HTTP. Domain failures come back in the response body as
// a MutationResult with Success=false; transport failures are Go errors.
type RemoteBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logx.Logger
}

// NewRemoteBackend creates a backend targeting the given base URL.
func NewRemoteBackend(baseURL, token string) *RemoteBackend {
	return &RemoteBackend{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logx.NewLogger("editor-remote"),
	}
}

// View implements FileMutationBackend.
func (r *RemoteBackend) View(ctx context.Context, workspaceID, path string) (*MutationResult, error) {
	return r.dispatch(ctx, mutationRequest{
		Command:     "view",
		WorkspaceID: workspaceID,
		Path:        path,
	})
}

// Create implements FileMutationBackend.
func (r *RemoteBackend) Create(ctx context.Context, workspaceID, path, content string) (*MutationResult, error) {
	return r.dispatch(ctx, mutationRequest{
		Command:     "create",
		WorkspaceID: workspaceID,
		Path:        path,
		Content:     content,
	})
}

// StrReplace implements FileMutationBackend.
func (r *RemoteBackend) StrReplace(ctx context.Context, workspaceID, path, oldStr, newStr string) (*MutationResult, error) {
	return r.dispatch(ctx, mutationRequest{
		Command:     "str_replace",
		WorkspaceID: workspaceID,
		Path:        path,
		OldStr:      oldStr,
		NewStr:      newStr,
	})
}

func (r *RemoteBackend) dispatch(ctx context.Context, req mutationRequest) (*MutationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", req.Command, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/editor", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Command, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s to editor service: %w", req.Command, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result MutationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode %s response (status %d): %w", req.Command, resp.StatusCode, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("editor service error on %s: status %d: %s", req.Command, resp.StatusCode, result.Error)
	}

	if !result.Success {
		r.logger.Debug("remote %s on %s failed: %s", req.Command, req.Path, result.Error)
	}
	return &result, nil
}
