package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chartsmith/pkg/editor"
	"chartsmith/pkg/patch"
	"chartsmith/pkg/persistence"
	"chartsmith/pkg/tools"
)

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	ws := &persistence.Workspace{
		ID:              persistence.GenerateID(),
		Name:            req.Name,
		CurrentRevision: 1,
	}
	if err := s.ops.CreateWorkspace(ws); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ws)
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.ops.GetWorkspace(chi.URLParam(r, "workspace_id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.ops.ListFiles(chi.URLParam(r, "workspace_id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, files)
}

func (s *Server) listPendingFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.ops.ListFilesWithPending(chi.URLParam(r, "workspace_id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, files)
}

func (s *Server) listCharts(w http.ResponseWriter, r *http.Request) {
	charts, err := s.ops.ListCharts(chi.URLParam(r, "workspace_id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, charts)
}

// pendingDiff renders the diff at the pending-patch navigation cursor.
// The index query parameter carries the cursor across requests and
// dir=next|prev steps it, wrapping at either end of the pending set.
func (s *Server) pendingDiff(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")
	if _, err := s.ops.GetWorkspace(workspaceID); err != nil {
		respondStoreError(w, err)
		return
	}

	nav, err := patch.NewNavigator(s.ops, workspaceID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	if raw := r.URL.Query().Get("index"); raw != "" {
		index, convErr := strconv.Atoi(raw)
		if convErr != nil {
			respondError(w, http.StatusBadRequest, "index must be an integer")
			return
		}
		nav.Seek(index)
	}
	switch r.URL.Query().Get("dir") {
	case "", "none":
	case "next":
		nav.Next()
	case "prev":
		nav.Prev()
	default:
		respondError(w, http.StatusBadRequest, "dir must be next or prev")
		return
	}

	file := nav.Current()
	if file == nil {
		respondJSON(w, http.StatusOK, map[string]any{"total": 0})
		return
	}

	hunks, truncated := patch.TextDiffWithLimit(file.Content, *file.ContentPending, 0)
	respondJSON(w, http.StatusOK, map[string]any{
		"index":     nav.Index(),
		"total":     nav.Len(),
		"fileId":    file.ID,
		"path":      file.FilePath,
		"hunks":     hunks,
		"truncated": truncated,
	})
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")
	if _, err := s.ops.GetWorkspace(workspaceID); err != nil {
		respondStoreError(w, err)
		return
	}

	var req struct {
		Description string   `json:"description"`
		ChatIDs     []string `json:"chatIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Description == "" {
		respondError(w, http.StatusBadRequest, "description is required")
		return
	}

	p := &persistence.Plan{
		ID:          persistence.GenerateID(),
		WorkspaceID: workspaceID,
		Description: req.Description,
		Status:      persistence.PlanStatusDraft,
		ChatIDs:     req.ChatIDs,
	}
	if err := s.ops.CreatePlan(p); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.ops.ListPlans(chi.URLParam(r, "workspace_id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	p, err := s.ops.GetPlan(chi.URLParam(r, "plan_id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type patchRequest struct {
	Revision int `json:"revision"`
}

func (s *Server) acceptFile(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	file, err := s.coordinator.AcceptOne(r.Context(), chi.URLParam(r, "file_id"), req.Revision)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

func (s *Server) rejectFile(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	file, err := s.coordinator.RejectOne(r.Context(), chi.URLParam(r, "file_id"), req.Revision)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

func (s *Server) acceptAll(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	updated, reports, err := s.coordinator.AcceptAll(r.Context(), chi.URLParam(r, "workspace_id"), req.Revision)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"files": updated, "reports": reports})
}

func (s *Server) rejectAll(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	updated, reports, err := s.coordinator.RejectAll(r.Context(), chi.URLParam(r, "workspace_id"), req.Revision)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"files": updated, "reports": reports})
}

// handleEditor is the remote mutation surface consumed by
// editor.RemoteBackend: request {command, workspaceId, path, content?,
// oldStr?, newStr?}, response {success, content?, message?, error?}.
func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command     string `json:"command"`
		WorkspaceID string `json:"workspaceId"`
		Path        string `json:"path"`
		Content     string `json:"content"`
		OldStr      string `json:"oldStr"`
		NewStr      string `json:"newStr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.WorkspaceID == "" || req.Path == "" {
		respondError(w, http.StatusBadRequest, "workspaceId and path are required")
		return
	}

	var result *editor.MutationResult
	var err error
	switch req.Command {
	case "view":
		result, err = s.backend.View(r.Context(), req.WorkspaceID, req.Path)
	case "create":
		result, err = s.backend.Create(r.Context(), req.WorkspaceID, req.Path, req.Content)
	case "str_replace":
		result, err = s.backend.StrReplace(r.Context(), req.WorkspaceID, req.Path, req.OldStr, req.NewStr)
	default:
		respondError(w, http.StatusBadRequest, "command must be view, create, or str_replace")
		return
	}
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, &editor.MutationResult{
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) planMetrics(w http.ResponseWriter, r *http.Request) {
	if s.query == nil {
		respondError(w, http.StatusServiceUnavailable, "metrics query service not configured")
		return
	}
	summary, err := s.query.GetPlanMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// toolDefinitions builds the LLM-facing tool definitions for a plan run.
func toolDefinitions(backend editor.FileMutationBackend, workspaceID string) []tools.ToolDefinition {
	provider := tools.NewProvider(tools.WorkspaceContext{
		Backend:     backend,
		WorkspaceID: workspaceID,
	})
	return provider.Definitions()
}
