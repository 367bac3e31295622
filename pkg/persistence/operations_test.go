package persistence

import (
	"errors"
	"path/filepath"
	"testing"
)

// Helper function to create a new database for each test.
func createTestDB(t *testing.T) *DatabaseOperations {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewDatabaseOperations(db)
}

func seedWorkspace(t *testing.T, ops *DatabaseOperations) *Workspace {
	t.Helper()
	ws := &Workspace{ID: GenerateID(), Name: "test-workspace", CurrentRevision: 1}
	if err := ops.CreateWorkspace(ws); err != nil {
		t.Fatalf("Failed to create workspace: %v", err)
	}
	return ws
}

func TestWorkspaceOperations(t *testing.T) {
	ops := createTestDB(t)

	ws := seedWorkspace(t, ops)

	got, err := ops.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("Failed to get workspace: %v", err)
	}
	if got.Name != "test-workspace" {
		t.Errorf("Expected name %q, got %q", "test-workspace", got.Name)
	}
	if got.CurrentRevision != 1 {
		t.Errorf("Expected revision 1, got %d", got.CurrentRevision)
	}

	if err := ops.SetWorkspaceRevision(ws.ID, 2); err != nil {
		t.Fatalf("Failed to set revision: %v", err)
	}
	got, err = ops.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("Failed to re-get workspace: %v", err)
	}
	if got.CurrentRevision != 2 {
		t.Errorf("Expected revision 2, got %d", got.CurrentRevision)
	}

	if _, err := ops.GetWorkspace("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing workspace, got %v", err)
	}
}

func TestFileInsertAndLatestSelection(t *testing.T) {
	ops := createTestDB(t)
	ws := seedWorkspace(t, ops)

	rev1 := 1
	file := &WorkspaceFile{
		WorkspaceID:    ws.ID,
		FilePath:       "Chart.yaml",
		Content:        "apiVersion: v2\nname: nginx\n",
		RevisionNumber: &rev1,
	}
	if err := ops.InsertFile(file); err != nil {
		t.Fatalf("Failed to insert file: %v", err)
	}

	// A second insert for the same path must fail with ErrAlreadyExists.
	dup := &WorkspaceFile{
		WorkspaceID:    ws.ID,
		FilePath:       "Chart.yaml",
		Content:        "apiVersion: v2\nname: other\n",
		RevisionNumber: &rev1,
	}
	if err := ops.InsertFile(dup); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	got, err := ops.GetFile(ws.ID, "Chart.yaml")
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if got.Content != file.Content {
		t.Errorf("Expected content %q, got %q", file.Content, got.Content)
	}
	if got.RevisionNumber == nil || *got.RevisionNumber != 1 {
		t.Errorf("Expected revision 1, got %v", got.RevisionNumber)
	}

	if _, err := ops.GetFile(ws.ID, "values.yaml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for absent path, got %v", err)
	}
}

func TestFilePendingContentLifecycle(t *testing.T) {
	ops := createTestDB(t)
	ws := seedWorkspace(t, ops)

	rev := 1
	file := &WorkspaceFile{
		WorkspaceID:    ws.ID,
		FilePath:       "values.yaml",
		Content:        "replicaCount: 1\n",
		RevisionNumber: &rev,
	}
	if err := ops.InsertFile(file); err != nil {
		t.Fatalf("Failed to insert file: %v", err)
	}

	if err := ops.SetPendingContent(file.ID, "replicaCount: 3\n"); err != nil {
		t.Fatalf("Failed to set pending: %v", err)
	}
	got, err := ops.GetFileByID(file.ID)
	if err != nil {
		t.Fatalf("Failed to get file by id: %v", err)
	}
	if !got.HasPendingPatch() || *got.ContentPending != "replicaCount: 3\n" {
		t.Errorf("Expected pending content staged, got %v", got.ContentPending)
	}
	if got.Content != "replicaCount: 1\n" {
		t.Errorf("Committed content must be untouched, got %q", got.Content)
	}

	if err := ops.ClearPendingContent(file.ID); err != nil {
		t.Fatalf("Failed to clear pending: %v", err)
	}
	got, err = ops.GetFileByID(file.ID)
	if err != nil {
		t.Fatalf("Failed to re-get file: %v", err)
	}
	if got.HasPendingPatch() {
		t.Errorf("Expected pending cleared, got %v", got.ContentPending)
	}

	// Update with clearPending wipes any staged content in the same write.
	if err := ops.SetPendingContent(file.ID, "replicaCount: 5\n"); err != nil {
		t.Fatalf("Failed to restage pending: %v", err)
	}
	if err := ops.UpdateFileContent(file.ID, "replicaCount: 2\n", true); err != nil {
		t.Fatalf("Failed to update content: %v", err)
	}
	got, err = ops.GetFileByID(file.ID)
	if err != nil {
		t.Fatalf("Failed to final-get file: %v", err)
	}
	if got.Content != "replicaCount: 2\n" || got.HasPendingPatch() {
		t.Errorf("Expected committed update with pending cleared, got content=%q pending=%v",
			got.Content, got.ContentPending)
	}
}

func TestListFilesWithPending(t *testing.T) {
	ops := createTestDB(t)
	ws := seedWorkspace(t, ops)

	rev := 1
	paths := []string{"Chart.yaml", "templates/deployment.yaml", "values.yaml"}
	for _, p := range paths {
		f := &WorkspaceFile{WorkspaceID: ws.ID, FilePath: p, Content: "x", RevisionNumber: &rev}
		if err := ops.InsertFile(f); err != nil {
			t.Fatalf("Failed to insert %s: %v", p, err)
		}
		if p != "Chart.yaml" {
			if err := ops.SetPendingContent(f.ID, "y"); err != nil {
				t.Fatalf("Failed to stage %s: %v", p, err)
			}
		}
	}

	pending, err := ops.ListFilesWithPending(ws.ID)
	if err != nil {
		t.Fatalf("Failed to list pending files: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending files, got %d", len(pending))
	}
	// Ordered by path.
	if pending[0].FilePath != "templates/deployment.yaml" || pending[1].FilePath != "values.yaml" {
		t.Errorf("Unexpected pending order: %s, %s", pending[0].FilePath, pending[1].FilePath)
	}

	all, err := ops.ListFiles(ws.ID)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 files, got %d", len(all))
	}
}

func TestPlanOperations(t *testing.T) {
	ops := createTestDB(t)
	ws := seedWorkspace(t, ops)

	plan := &Plan{
		ID:          GenerateID(),
		WorkspaceID: ws.ID,
		Description: "Add an nginx deployment with configurable replicas",
		ChatIDs:     []string{"msg-1", "msg-2"},
	}
	if err := ops.CreatePlan(plan); err != nil {
		t.Fatalf("Failed to create plan: %v", err)
	}

	got, err := ops.GetPlan(plan.ID)
	if err != nil {
		t.Fatalf("Failed to get plan: %v", err)
	}
	if got.Status != PlanStatusDraft {
		t.Errorf("Expected draft status, got %s", got.Status)
	}
	if len(got.ChatIDs) != 2 {
		t.Errorf("Expected 2 chat associations, got %d", len(got.ChatIDs))
	}
	if got.ProceedAt != nil {
		t.Errorf("proceed_at must be unset until applied, got %v", got.ProceedAt)
	}

	if err := ops.UpdatePlanStatus(plan.ID, PlanStatusApplying); err != nil {
		t.Fatalf("Failed to set applying: %v", err)
	}
	if err := ops.UpdatePlanStatus(plan.ID, PlanStatusApplied); err != nil {
		t.Fatalf("Failed to set applied: %v", err)
	}
	got, err = ops.GetPlan(plan.ID)
	if err != nil {
		t.Fatalf("Failed to re-get plan: %v", err)
	}
	if got.ProceedAt == nil {
		t.Error("Expected proceed_at stamped on applied")
	}

	if err := ops.UpdatePlanStatus(plan.ID, "bogus"); err == nil {
		t.Error("Expected error for invalid status")
	}
}

func TestActionFileUpsertPreservesSeedOrder(t *testing.T) {
	ops := createTestDB(t)
	ws := seedWorkspace(t, ops)

	plan := &Plan{ID: GenerateID(), WorkspaceID: ws.ID, Description: "d"}
	if err := ops.CreatePlan(plan); err != nil {
		t.Fatalf("Failed to create plan: %v", err)
	}

	seed := []string{"Chart.yaml", "values.yaml", "templates/deployment.yaml"}
	for _, p := range seed {
		if err := ops.AddOrUpdateActionFile(plan.ID, p, ActionFileActionCreate, ActionFileStatusPending); err != nil {
			t.Fatalf("Failed to seed %s: %v", p, err)
		}
	}

	// Updating an existing entry must not move it.
	if err := ops.AddOrUpdateActionFile(plan.ID, "Chart.yaml", ActionFileActionCreate, ActionFileStatusCreated); err != nil {
		t.Fatalf("Failed to update Chart.yaml: %v", err)
	}
	// A new path appends.
	if err := ops.AddOrUpdateActionFile(plan.ID, "templates/service.yaml", ActionFileActionCreate, ActionFileStatusCreating); err != nil {
		t.Fatalf("Failed to add service.yaml: %v", err)
	}

	files, err := ops.GetActionFiles(plan.ID)
	if err != nil {
		t.Fatalf("Failed to get action files: %v", err)
	}
	wantOrder := append(seed, "templates/service.yaml")
	if len(files) != len(wantOrder) {
		t.Fatalf("Expected %d action files, got %d", len(wantOrder), len(files))
	}
	for i, want := range wantOrder {
		if files[i].Path != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, files[i].Path)
		}
	}
	if files[0].Status != ActionFileStatusCreated {
		t.Errorf("Expected Chart.yaml created, got %s", files[0].Status)
	}

	if err := ops.AddOrUpdateActionFile(plan.ID, "x", ActionFileActionCreate, "bogus"); err == nil {
		t.Error("Expected error for invalid action file status")
	}
}

func TestReplaceLogRoundTrip(t *testing.T) {
	ops := createTestDB(t)

	errMsg := "old_str not found in file"
	entry := &ReplaceLogEntry{
		FilePath:       "templates/deployment.yaml",
		Found:          false,
		OldStr:         "replicas: 1",
		NewStr:         "replicas: 3",
		UpdatedContent: "",
		OldStrLen:      11,
		NewStrLen:      11,
		ErrorMessage:   &errMsg,
	}
	if err := ops.InsertReplaceLog(entry); err != nil {
		t.Fatalf("Failed to insert replace log: %v", err)
	}

	before := "metadata:\n  name: web\nspec:\n  "
	after := "\n  selector:"
	success := &ReplaceLogEntry{
		FilePath:       "templates/deployment.yaml",
		Found:          true,
		OldStr:         "replicas: 1",
		NewStr:         "replicas: 3",
		UpdatedContent: "spec:\n  replicas: 3\n",
		OldStrLen:      11,
		NewStrLen:      11,
		ContextBefore:  &before,
		ContextAfter:   &after,
	}
	if err := ops.InsertReplaceLog(success); err != nil {
		t.Fatalf("Failed to insert success log: %v", err)
	}

	entries, err := ops.ListReplaceLogs("templates/deployment.yaml")
	if err != nil {
		t.Fatalf("Failed to list replace logs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	var foundFailure, foundSuccess bool
	for _, e := range entries {
		if !e.Found {
			foundFailure = true
			if e.ErrorMessage == nil || *e.ErrorMessage != errMsg {
				t.Errorf("Expected error message on failure entry, got %v", e.ErrorMessage)
			}
		} else {
			foundSuccess = true
			if e.ContextBefore == nil || e.ContextAfter == nil {
				t.Error("Expected context on success entry")
			}
		}
	}
	if !foundFailure || !foundSuccess {
		t.Error("Expected one failure and one success entry")
	}
}
