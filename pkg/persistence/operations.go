package persistence

import (
	"database/sql"
	"fmt"
	"time"
)

// DatabaseOperations provides methods for database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// --- Workspaces ---

// CreateWorkspace inserts a new workspace record.
func (ops *DatabaseOperations) CreateWorkspace(ws *Workspace) error {
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now().UTC()
	}
	_, err := ops.db.Exec(
		"INSERT INTO workspace (id, name, current_revision, created_at) VALUES (?, ?, ?, ?)",
		ws.ID, ws.Name, ws.CurrentRevision, ws.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", ws.ID, err)
	}
	return nil
}

// GetWorkspace retrieves a workspace by ID.
func (ops *DatabaseOperations) GetWorkspace(id string) (*Workspace, error) {
	ws := &Workspace{}
	err := ops.db.QueryRow(
		"SELECT id, name, current_revision, created_at FROM workspace WHERE id = ?", id,
	).Scan(&ws.ID, &ws.Name, &ws.CurrentRevision, &ws.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace %s: %w", id, err)
	}
	return ws, nil
}

// SetWorkspaceRevision updates the workspace's current revision number.
func (ops *DatabaseOperations) SetWorkspaceRevision(id string, revision int) error {
	result, err := ops.db.Exec(
		"UPDATE workspace SET current_revision = ? WHERE id = ?", revision, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set workspace revision: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Charts ---

// CreateChart inserts a new chart record.
func (ops *DatabaseOperations) CreateChart(chart *Chart) error {
	if chart.CreatedAt.IsZero() {
		chart.CreatedAt = time.Now().UTC()
	}
	_, err := ops.db.Exec(
		"INSERT INTO chart (id, workspace_id, name, created_at) VALUES (?, ?, ?, ?)",
		chart.ID, chart.WorkspaceID, chart.Name, chart.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chart %s: %w", chart.ID, err)
	}
	return nil
}

// ListCharts returns all charts for a workspace.
func (ops *DatabaseOperations) ListCharts(workspaceID string) ([]*Chart, error) {
	rows, err := ops.db.Query(
		"SELECT id, workspace_id, name, created_at FROM chart WHERE workspace_id = ? ORDER BY created_at",
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list charts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var charts []*Chart
	for rows.Next() {
		chart := &Chart{}
		if err := rows.Scan(&chart.ID, &chart.WorkspaceID, &chart.Name, &chart.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chart: %w", err)
		}
		charts = append(charts, chart)
	}
	return charts, rows.Err()
}

// --- Workspace files ---

const fileColumns = "id, workspace_id, chart_id, file_path, content, content_pending, revision_number"

func scanFile(scanner interface{ Scan(...any) error }) (*WorkspaceFile, error) {
	file := &WorkspaceFile{}
	err := scanner.Scan(
		&file.ID, &file.WorkspaceID, &file.ChartID, &file.FilePath,
		&file.Content, &file.ContentPending, &file.RevisionNumber,
	)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// GetFile returns the latest row for (workspaceID, filePath), selected by
// highest non-null revision number. Returns ErrNotFound if absent.
func (ops *DatabaseOperations) GetFile(workspaceID, filePath string) (*WorkspaceFile, error) {
	row := ops.db.QueryRow(fmt.Sprintf(`
		SELECT %s FROM workspace_file
		WHERE workspace_id = ? AND file_path = ?
		ORDER BY revision_number IS NULL, revision_number DESC
		LIMIT 1
	`, fileColumns), workspaceID, filePath)

	file, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file %s: %w", filePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", filePath, err)
	}
	return file, nil
}

// GetFileByID returns a file row by primary key.
func (ops *DatabaseOperations) GetFileByID(id string) (*WorkspaceFile, error) {
	row := ops.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM workspace_file WHERE id = ?", fileColumns), id,
	)
	file, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file id %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file by id %s: %w", id, err)
	}
	return file, nil
}

// InsertFile creates a new file row at the given revision.
// Fails with ErrAlreadyExists if a current row exists for the path.
func (ops *DatabaseOperations) InsertFile(file *WorkspaceFile) error {
	if _, err := ops.GetFile(file.WorkspaceID, file.FilePath); err == nil {
		return fmt.Errorf("file %s: %w", file.FilePath, ErrAlreadyExists)
	}

	if file.ID == "" {
		file.ID = GenerateID()
	}
	_, err := ops.db.Exec(fmt.Sprintf(
		"INSERT INTO workspace_file (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", fileColumns),
		file.ID, file.WorkspaceID, file.ChartID, file.FilePath,
		file.Content, file.ContentPending, file.RevisionNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file %s: %w", file.FilePath, err)
	}
	return nil
}

// UpdateFileContent replaces the committed content of a file row,
// optionally clearing any staged pending content.
func (ops *DatabaseOperations) UpdateFileContent(id, content string, clearPending bool) error {
	var (
		result sql.Result
		err    error
	)
	if clearPending {
		result, err = ops.db.Exec(
			"UPDATE workspace_file SET content = ?, content_pending = NULL WHERE id = ?",
			content, id,
		)
	} else {
		result, err = ops.db.Exec(
			"UPDATE workspace_file SET content = ? WHERE id = ?", content, id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update file %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("file id %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetPendingContent stages content on a file row without committing it.
func (ops *DatabaseOperations) SetPendingContent(id, content string) error {
	result, err := ops.db.Exec(
		"UPDATE workspace_file SET content_pending = ? WHERE id = ?", content, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set pending content on %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("file id %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClearPendingContent discards any staged content on a file row.
func (ops *DatabaseOperations) ClearPendingContent(id string) error {
	result, err := ops.db.Exec(
		"UPDATE workspace_file SET content_pending = NULL WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("failed to clear pending content on %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("file id %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListFiles returns the latest row per path for a workspace, ordered by path.
func (ops *DatabaseOperations) ListFiles(workspaceID string) ([]*WorkspaceFile, error) {
	rows, err := ops.db.Query(fmt.Sprintf(`
		SELECT %s FROM workspace_file wf
		WHERE workspace_id = ?
		  AND (revision_number IS NULL OR revision_number = (
			SELECT MAX(revision_number) FROM workspace_file
			WHERE workspace_id = wf.workspace_id AND file_path = wf.file_path
		  ))
		ORDER BY file_path
	`, fileColumns), workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*WorkspaceFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// ListFilesWithPending returns files of a workspace that have staged
// pending content, ordered by path.
func (ops *DatabaseOperations) ListFilesWithPending(workspaceID string) ([]*WorkspaceFile, error) {
	rows, err := ops.db.Query(fmt.Sprintf(`
		SELECT %s FROM workspace_file
		WHERE workspace_id = ? AND content_pending IS NOT NULL
		ORDER BY file_path
	`, fileColumns), workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*WorkspaceFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// --- Plans ---

// CreatePlan inserts a new plan record with its chat message associations.
func (ops *DatabaseOperations) CreatePlan(plan *Plan) error {
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	if plan.Status == "" {
		plan.Status = PlanStatusDraft
	}

	_, err := ops.db.Exec(`
		INSERT INTO workspace_plan (id, workspace_id, description, status, created_at, updated_at, proceed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, plan.ID, plan.WorkspaceID, plan.Description, plan.Status, plan.CreatedAt, plan.UpdatedAt, plan.ProceedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan %s: %w", plan.ID, err)
	}

	for _, msgID := range plan.ChatIDs {
		if _, err := ops.db.Exec(
			"INSERT OR IGNORE INTO plan_chat_message (plan_id, message_id) VALUES (?, ?)",
			plan.ID, msgID,
		); err != nil {
			return fmt.Errorf("failed to associate chat message %s: %w", msgID, err)
		}
	}
	return nil
}

// GetPlan retrieves a plan with its action files and chat associations.
func (ops *DatabaseOperations) GetPlan(id string) (*Plan, error) {
	plan := &Plan{}
	err := ops.db.QueryRow(`
		SELECT id, workspace_id, description, status, created_at, updated_at, proceed_at
		FROM workspace_plan WHERE id = ?
	`, id).Scan(&plan.ID, &plan.WorkspaceID, &plan.Description, &plan.Status,
		&plan.CreatedAt, &plan.UpdatedAt, &plan.ProceedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s: %w", id, err)
	}

	actionFiles, err := ops.GetActionFiles(id)
	if err != nil {
		return nil, err
	}
	plan.ActionFiles = actionFiles

	rows, err := ops.db.Query(
		"SELECT message_id FROM plan_chat_message WHERE plan_id = ?", id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages for plan %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var msgID string
		if err := rows.Scan(&msgID); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		plan.ChatIDs = append(plan.ChatIDs, msgID)
	}
	return plan, rows.Err()
}

// ListPlans returns all plans for a workspace, newest first.
func (ops *DatabaseOperations) ListPlans(workspaceID string) ([]*Plan, error) {
	rows, err := ops.db.Query(`
		SELECT id, workspace_id, description, status, created_at, updated_at, proceed_at
		FROM workspace_plan WHERE workspace_id = ? ORDER BY created_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var plans []*Plan
	for rows.Next() {
		plan := &Plan{}
		if err := rows.Scan(&plan.ID, &plan.WorkspaceID, &plan.Description, &plan.Status,
			&plan.CreatedAt, &plan.UpdatedAt, &plan.ProceedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// UpdatePlanStatus updates a plan's status, stamping proceed_at when the
// plan reaches applied.
func (ops *DatabaseOperations) UpdatePlanStatus(id, status string) error {
	if !IsValidPlanStatus(status) {
		return fmt.Errorf("invalid plan status: %s", status)
	}

	now := time.Now().UTC()
	var (
		result sql.Result
		err    error
	)
	if status == PlanStatusApplied {
		result, err = ops.db.Exec(
			"UPDATE workspace_plan SET status = ?, updated_at = ?, proceed_at = ? WHERE id = ?",
			status, now, now, id,
		)
	} else {
		result, err = ops.db.Exec(
			"UPDATE workspace_plan SET status = ?, updated_at = ? WHERE id = ?",
			status, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Action files ---

// AddOrUpdateActionFile upserts an action file entry for a plan.
// The first call for a path is an implicit add, preserving seq ordering.
func (ops *DatabaseOperations) AddOrUpdateActionFile(planID, path, action, status string) error {
	if !IsValidActionFileStatus(status) {
		return fmt.Errorf("invalid action file status: %s", status)
	}

	var nextSeq int
	err := ops.db.QueryRow(
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM plan_action_file WHERE plan_id = ?", planID,
	).Scan(&nextSeq)
	if err != nil {
		return fmt.Errorf("failed to compute action file seq: %w", err)
	}

	_, err = ops.db.Exec(`
		INSERT INTO plan_action_file (plan_id, seq, path, action, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, path) DO UPDATE SET
			action = excluded.action,
			status = excluded.status
	`, planID, nextSeq, path, action, status)
	if err != nil {
		return fmt.Errorf("failed to upsert action file %s: %w", path, err)
	}
	return nil
}

// GetActionFiles returns a plan's action files in seed order.
func (ops *DatabaseOperations) GetActionFiles(planID string) ([]ActionFile, error) {
	rows, err := ops.db.Query(
		"SELECT path, action, status FROM plan_action_file WHERE plan_id = ? ORDER BY seq", planID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list action files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []ActionFile
	for rows.Next() {
		var af ActionFile
		if err := rows.Scan(&af.Path, &af.Action, &af.Status); err != nil {
			return nil, fmt.Errorf("failed to scan action file: %w", err)
		}
		files = append(files, af)
	}
	return files, rows.Err()
}

// --- Replace log ---

// InsertReplaceLog appends one immutable audit record.
func (ops *DatabaseOperations) InsertReplaceLog(entry *ReplaceLogEntry) error {
	if entry.ID == "" {
		entry.ID = GenerateID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := ops.db.Exec(`
		INSERT INTO str_replace_log (
			id, created_at, file_path, found, old_str, new_str, updated_content,
			old_str_len, new_str_len, context_before, context_after, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.CreatedAt, entry.FilePath, entry.Found, entry.OldStr, entry.NewStr,
		entry.UpdatedContent, entry.OldStrLen, entry.NewStrLen,
		entry.ContextBefore, entry.ContextAfter, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert replace log entry: %w", err)
	}
	return nil
}

// ListReplaceLogs returns audit records for a path, newest first.
func (ops *DatabaseOperations) ListReplaceLogs(filePath string) ([]*ReplaceLogEntry, error) {
	rows, err := ops.db.Query(`
		SELECT id, created_at, file_path, found, old_str, new_str, updated_content,
			old_str_len, new_str_len, context_before, context_after, error_message
		FROM str_replace_log WHERE file_path = ? ORDER BY created_at DESC
	`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list replace logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*ReplaceLogEntry
	for rows.Next() {
		entry := &ReplaceLogEntry{}
		if err := rows.Scan(&entry.ID, &entry.CreatedAt, &entry.FilePath, &entry.Found,
			&entry.OldStr, &entry.NewStr, &entry.UpdatedContent,
			&entry.OldStrLen, &entry.NewStrLen,
			&entry.ContextBefore, &entry.ContextAfter, &entry.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan replace log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
