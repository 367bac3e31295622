package plan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"chartsmith/pkg/editor"
	"chartsmith/pkg/llm"
	"chartsmith/pkg/persistence"
	"chartsmith/pkg/plan/classify"
)

// countingPublisher records publish calls for assertions.
type countingPublisher struct {
	mu    sync.Mutex
	count int
}

func (p *countingPublisher) PublishPlanUpdate(_, _ string) {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
}

func (p *countingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// failingBackend returns an infrastructure error from every operation.
type failingBackend struct{}

func (failingBackend) View(_ context.Context, _, _ string) (*editor.MutationResult, error) {
	return nil, errors.New("store unavailable")
}

func (failingBackend) Create(_ context.Context, _, _, _ string) (*editor.MutationResult, error) {
	return nil, errors.New("store unavailable")
}

func (failingBackend) StrReplace(_ context.Context, _, _, _, _ string) (*editor.MutationResult, error) {
	return nil, errors.New("store unavailable")
}

type executorFixture struct {
	ops       *persistence.DatabaseOperations
	engine    *editor.Engine
	publisher *countingPublisher
	wsID      string
	planID    string
}

func setupExecutor(t *testing.T, description string) *executorFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := persistence.OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ops := persistence.NewDatabaseOperations(db)
	ws := &persistence.Workspace{
		ID:              persistence.GenerateID(),
		Name:            "test-workspace",
		CurrentRevision: 1,
	}
	if err := ops.CreateWorkspace(ws); err != nil {
		t.Fatalf("failed to create workspace: %v", err)
	}

	p := &persistence.Plan{
		ID:          persistence.GenerateID(),
		WorkspaceID: ws.ID,
		Description: description,
		Status:      persistence.PlanStatusDraft,
	}
	if err := ops.CreatePlan(p); err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}

	return &executorFixture{
		ops:       ops,
		engine:    editor.NewEngine(ops),
		publisher: &countingPublisher{},
		wsID:      ws.ID,
		planID:    p.ID,
	}
}

func (f *executorFixture) executor() *Executor {
	return NewExecutor(f.ops, f.engine, classify.NewClassifier(nil), f.publisher)
}

func editorCall(id, command, path string, extra map[string]any) llm.ToolCall {
	params := map[string]any{
		"command": command,
		"path":    path,
	}
	for k, v := range extra {
		params[k] = v
	}
	return llm.ToolCall{ID: id, Name: "text_editor", Parameters: params}
}

func planStatus(t *testing.T, f *executorFixture) string {
	t.Helper()
	p, err := f.ops.GetPlan(f.planID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	return p.Status
}

func TestExecuteAppliesPlan(t *testing.T) {
	f := setupExecutor(t, "Create Chart.yaml and values.yaml for the web chart")

	stream := &llm.ScriptedStream{
		Steps: []*llm.ToolStep{
			{ToolCalls: []llm.ToolCall{
				editorCall("c1", "create", "Chart.yaml", map[string]any{"content": "name: web\n"}),
				editorCall("c2", "create", "values.yaml", map[string]any{"content": "replicas: 1\n"}),
			}},
		},
	}

	if err := f.executor().Execute(context.Background(), f.planID, stream); err != nil {
		t.Fatalf("execute: %v", err)
	}

	p, err := f.ops.GetPlan(f.planID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if p.Status != persistence.PlanStatusApplied {
		t.Errorf("status = %s, want applied", p.Status)
	}
	if p.ProceedAt == nil {
		t.Error("proceed_at should be stamped on applied")
	}

	for _, path := range []string{"Chart.yaml", "values.yaml"} {
		if _, err := f.ops.GetFile(f.wsID, path); err != nil {
			t.Errorf("file %s not persisted: %v", path, err)
		}
	}

	statuses := actionFileStatuses(t, f.ops, f.planID)
	for _, path := range []string{"Chart.yaml", "values.yaml"} {
		if statuses[path] != persistence.ActionFileStatusCreated {
			t.Errorf("action file %s = %s, want created", path, statuses[path])
		}
	}

	if f.publisher.Count() == 0 {
		t.Error("expected plan update publications")
	}
}

func TestExecuteSeedsExpectedFileListInOrder(t *testing.T) {
	f := setupExecutor(t, "Update Chart.yaml, values.yaml, and templates/deployment.yaml")

	if err := f.executor().Execute(context.Background(), f.planID, &llm.ScriptedStream{}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	files, err := f.ops.GetActionFiles(f.planID)
	if err != nil {
		t.Fatalf("get action files: %v", err)
	}
	want := []string{"Chart.yaml", "values.yaml", "templates/deployment.yaml"}
	if len(files) != len(want) {
		t.Fatalf("got %d action files, want %d", len(files), len(want))
	}
	for i, path := range want {
		if files[i].Path != path {
			t.Errorf("seed order[%d] = %s, want %s", i, files[i].Path, path)
		}
		if files[i].Status != persistence.ActionFileStatusPending {
			t.Errorf("seeded %s status = %s, want pending", path, files[i].Status)
		}
	}
}

func TestExecuteInterleavedFiles(t *testing.T) {
	f := setupExecutor(t, "")

	// The model examines a.yaml, switches to b.yaml before finishing,
	// then comes back. a.yaml must be transiently demoted and still end
	// up created.
	stream := &llm.ScriptedStream{
		Steps: []*llm.ToolStep{
			{ToolCalls: []llm.ToolCall{editorCall("c1", "view", "a.yaml", nil)}},
			{ToolCalls: []llm.ToolCall{editorCall("c2", "create", "b.yaml", map[string]any{"content": "b"})}},
			{ToolCalls: []llm.ToolCall{editorCall("c3", "create", "a.yaml", map[string]any{"content": "a"})}},
		},
	}

	if err := f.executor().Execute(context.Background(), f.planID, stream); err != nil {
		t.Fatalf("execute: %v", err)
	}

	statuses := actionFileStatuses(t, f.ops, f.planID)
	if statuses["a.yaml"] != persistence.ActionFileStatusCreated {
		t.Errorf("a.yaml = %s, want created", statuses["a.yaml"])
	}
	if statuses["b.yaml"] != persistence.ActionFileStatusCreated {
		t.Errorf("b.yaml = %s, want created", statuses["b.yaml"])
	}
	if planStatus(t, f) != persistence.PlanStatusApplied {
		t.Errorf("plan status = %s, want applied", planStatus(t, f))
	}
}

func TestExecuteDomainFailureIsRelayedNotFatal(t *testing.T) {
	f := setupExecutor(t, "")

	// Duplicate create is a domain failure: the model gets an error
	// result and the run continues.
	stream := &llm.ScriptedStream{
		Steps: []*llm.ToolStep{
			{ToolCalls: []llm.ToolCall{editorCall("c1", "create", "f.yaml", map[string]any{"content": "one"})}},
			{ToolCalls: []llm.ToolCall{editorCall("c2", "create", "f.yaml", map[string]any{"content": "two"})}},
		},
	}

	if err := f.executor().Execute(context.Background(), f.planID, stream); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if planStatus(t, f) != persistence.PlanStatusApplied {
		t.Errorf("plan status = %s, want applied", planStatus(t, f))
	}

	// The second step's result must carry the error back to the model.
	if len(stream.Received) < 3 {
		t.Fatalf("expected 3 Next calls, got %d", len(stream.Received))
	}
	secondResults := stream.Received[2]
	if len(secondResults) != 1 || !secondResults[0].IsError {
		t.Errorf("expected error result for duplicate create, got %+v", secondResults)
	}

	file, err := f.ops.GetFile(f.wsID, "f.yaml")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if file.Content != "one" {
		t.Errorf("content = %q, duplicate create must not overwrite", file.Content)
	}
}

func TestExecuteStreamAbortForcesReview(t *testing.T) {
	f := setupExecutor(t, "")

	stream := &llm.ScriptedStream{
		Errs: []error{errors.New("stream aborted")},
	}

	if err := f.executor().Execute(context.Background(), f.planID, stream); err == nil {
		t.Fatal("expected error from aborted stream")
	}
	if planStatus(t, f) != persistence.PlanStatusReview {
		t.Errorf("plan status = %s, want review", planStatus(t, f))
	}
}

func TestExecuteInfrastructureErrorForcesReview(t *testing.T) {
	f := setupExecutor(t, "")

	stream := &llm.ScriptedStream{
		Steps: []*llm.ToolStep{
			{ToolCalls: []llm.ToolCall{editorCall("c1", "create", "f.yaml", map[string]any{"content": "x"})}},
		},
	}

	executor := NewExecutor(f.ops, failingBackend{}, classify.NewClassifier(nil), f.publisher)
	if err := executor.Execute(context.Background(), f.planID, stream); err == nil {
		t.Fatal("expected error from failing backend")
	}
	if planStatus(t, f) != persistence.PlanStatusReview {
		t.Errorf("plan status = %s, want review", planStatus(t, f))
	}
}

// panickingBackend panics on mutation, like a bug in the backend would.
type panickingBackend struct{}

func (panickingBackend) View(_ context.Context, _, _ string) (*editor.MutationResult, error) {
	panic("backend bug")
}

func (panickingBackend) Create(_ context.Context, _, _, _ string) (*editor.MutationResult, error) {
	panic("backend bug")
}

func (panickingBackend) StrReplace(_ context.Context, _, _, _, _ string) (*editor.MutationResult, error) {
	panic("backend bug")
}

func TestExecutePanicForcesReview(t *testing.T) {
	f := setupExecutor(t, "")

	stream := &llm.ScriptedStream{
		Steps: []*llm.ToolStep{
			{ToolCalls: []llm.ToolCall{editorCall("c1", "create", "f.yaml", map[string]any{"content": "x"})}},
		},
	}

	executor := NewExecutor(f.ops, panickingBackend{}, classify.NewClassifier(nil), f.publisher)
	err := executor.Execute(context.Background(), f.planID, stream)
	if err == nil {
		t.Fatal("expected error from panicking backend")
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Errorf("error = %v, want panic wrapped", err)
	}
	if planStatus(t, f) != persistence.PlanStatusReview {
		t.Errorf("plan status = %s, want review", planStatus(t, f))
	}
}

func TestExecuteRefusesConcurrentReentry(t *testing.T) {
	f := setupExecutor(t, "")
	if err := f.ops.UpdatePlanStatus(f.planID, persistence.PlanStatusApplying); err != nil {
		t.Fatalf("set applying: %v", err)
	}

	err := f.executor().Execute(context.Background(), f.planID, &llm.ScriptedStream{})
	if err == nil {
		t.Fatal("expected error entering applying from applying")
	}
}

func TestExecuteRetryFromReview(t *testing.T) {
	f := setupExecutor(t, "")
	if err := f.ops.UpdatePlanStatus(f.planID, persistence.PlanStatusApplying); err != nil {
		t.Fatalf("set applying: %v", err)
	}
	if err := f.ops.UpdatePlanStatus(f.planID, persistence.PlanStatusReview); err != nil {
		t.Fatalf("set review: %v", err)
	}

	if err := f.executor().Execute(context.Background(), f.planID, &llm.ScriptedStream{}); err != nil {
		t.Fatalf("retry from review: %v", err)
	}
	if planStatus(t, f) != persistence.PlanStatusApplied {
		t.Errorf("plan status = %s, want applied", planStatus(t, f))
	}
}

func TestExecuteStepCap(t *testing.T) {
	f := setupExecutor(t, "")

	// More steps than the cap; the run must stop at MaxToolSteps and
	// still settle the plan.
	steps := make([]*llm.ToolStep, MaxToolSteps+10)
	for i := range steps {
		steps[i] = &llm.ToolStep{ToolCalls: []llm.ToolCall{
			editorCall(fmt.Sprintf("c%d", i), "view", "missing.yaml", nil),
		}}
	}
	stream := &llm.ScriptedStream{Steps: steps}

	if err := f.executor().Execute(context.Background(), f.planID, stream); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := len(stream.Received); got != MaxToolSteps {
		t.Errorf("stream consumed %d steps, want %d", got, MaxToolSteps)
	}
	if planStatus(t, f) != persistence.PlanStatusApplied {
		t.Errorf("plan status = %s, want applied", planStatus(t, f))
	}
}

func TestExecuteUnknownToolRelayedAsError(t *testing.T) {
	f := setupExecutor(t, "")

	stream := &llm.ScriptedStream{
		Steps: []*llm.ToolStep{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "no_such_tool", Parameters: map[string]any{}}}},
		},
	}

	if err := f.executor().Execute(context.Background(), f.planID, stream); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(stream.Received) < 2 {
		t.Fatalf("expected 2 Next calls, got %d", len(stream.Received))
	}
	results := stream.Received[1]
	if len(results) != 1 || !results[0].IsError {
		t.Errorf("expected error result for unknown tool, got %+v", results)
	}
	if planStatus(t, f) != persistence.PlanStatusApplied {
		t.Errorf("plan status = %s, want applied", planStatus(t, f))
	}
}
