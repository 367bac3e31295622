// Package api exposes the HTTP surface: workspace and plan management,
// the file mutation endpoint, patch accept/reject, and the websocket
// event feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartsmith/pkg/editor"
	"chartsmith/pkg/events"
	"chartsmith/pkg/llm"
	"chartsmith/pkg/logx"
	"chartsmith/pkg/metrics"
	"chartsmith/pkg/patch"
	"chartsmith/pkg/persistence"
	"chartsmith/pkg/plan"
	"chartsmith/pkg/plan/classify"
)

// Server wires the HTTP handlers to the underlying services.
type Server struct {
	ops         *persistence.DatabaseOperations
	backend     editor.FileMutationBackend
	coordinator *patch.Coordinator
	bus         *events.Bus
	publisher   events.Publisher
	llmClient   llm.Client
	query       *metrics.QueryService
	apiToken    string
	logger      *logx.Logger
}

// Options configures a Server.
type Options struct {
	Ops           *persistence.DatabaseOperations
	Backend       editor.FileMutationBackend
	LLMClient     llm.Client
	Query         *metrics.QueryService
	APIToken      string
	Authoritative patch.Authoritative
}

// NewServer creates a server over the given collaborators.
func NewServer(opts Options) *Server {
	bus := events.NewBus()
	return &Server{
		ops:         opts.Ops,
		backend:     opts.Backend,
		coordinator: patch.NewCoordinator(opts.Ops, opts.Authoritative),
		bus:         bus,
		publisher:   events.NewBusPublisher(bus),
		llmClient:   opts.LLMClient,
		query:       opts.Query,
		apiToken:    opts.APIToken,
		logger:      logx.NewLogger("api"),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(s.requireAuth)

		api.Route("/api/workspaces", func(r chi.Router) {
			r.Post("/", s.createWorkspace)
			r.Get("/{workspace_id}", s.getWorkspace)
			r.Get("/{workspace_id}/files", s.listFiles)
			r.Get("/{workspace_id}/files/pending", s.listPendingFiles)
			r.Get("/{workspace_id}/files/pending/diff", s.pendingDiff)
			r.Get("/{workspace_id}/charts", s.listCharts)
			r.Post("/{workspace_id}/plans", s.createPlan)
			r.Get("/{workspace_id}/plans", s.listPlans)
			r.Post("/{workspace_id}/accept-all", s.acceptAll)
			r.Post("/{workspace_id}/reject-all", s.rejectAll)
		})

		api.Route("/api/plans", func(r chi.Router) {
			r.Get("/{plan_id}", s.getPlan)
			r.Post("/{plan_id}/apply", s.applyPlan)
		})

		api.Route("/api/files", func(r chi.Router) {
			r.Post("/{file_id}/accept", s.acceptFile)
			r.Post("/{file_id}/reject", s.rejectFile)
		})

		api.Post("/api/editor", s.handleEditor)
		api.Get("/api/metrics/plans", s.planMetrics)
		api.Get("/ws", s.handleWebsocket)
	})

	return r
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth enforces the bearer token when one is configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken != "" {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token != s.apiToken {
				respondError(w, http.StatusUnauthorized, "missing or invalid credentials")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// applyPlan runs the plan executor against a fresh provider-backed
// tool-call stream. The run is synchronous; a failed run leaves the
// plan in review and reports the error.
func (s *Server) applyPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "plan_id")
	p, err := s.ops.GetPlan(planID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	if s.llmClient == nil {
		respondError(w, http.StatusServiceUnavailable, "no llm client configured")
		return
	}

	classifier := classify.NewClassifier(s.llmClient)
	executor := plan.NewExecutor(s.ops, s.backend, classifier, s.publisher)

	stream := llm.NewProviderStream(
		s.llmClient,
		applySystemPrompt,
		p.Description,
		toolDefinitions(s.backend, p.WorkspaceID),
		8192,
	)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	if err := executor.Execute(ctx, planID, stream); err != nil {
		s.logger.Error("plan %s execution failed: %v", planID, err)
		updated, getErr := s.ops.GetPlan(planID)
		status := persistence.PlanStatusReview
		if getErr == nil {
			status = updated.Status
		}
		respondJSON(w, http.StatusConflict, map[string]any{
			"planId": planID,
			"status": status,
			"error":  err.Error(),
		})
		return
	}

	updated, err := s.ops.GetPlan(planID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

const applySystemPrompt = `You are a Helm chart authoring assistant.
Apply the requested plan by creating and editing chart files with the
text_editor tool. View a file before editing it. Stop when every change
in the plan has been applied.`

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, persistence.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, persistence.ErrAlreadyExists):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
