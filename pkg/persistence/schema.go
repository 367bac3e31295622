package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Empty database (version 0) gets a fresh schema
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds surrounding-context columns to the replace log.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE str_replace_log ADD COLUMN context_before TEXT",
		"ALTER TABLE str_replace_log ADD COLUMN context_after TEXT",
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}
	return nil
}

// createSchema creates the full schema at the current version.
func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workspace (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			current_revision INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chart (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspace(id),
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workspace_file (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspace(id),
			chart_id TEXT REFERENCES chart(id),
			file_path TEXT NOT NULL,
			content TEXT NOT NULL,
			content_pending TEXT,
			revision_number INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workspace_file_lookup
			ON workspace_file(workspace_id, file_path)`,
		`CREATE TABLE IF NOT EXISTS workspace_plan (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspace(id),
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			proceed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS plan_action_file (
			plan_id TEXT NOT NULL REFERENCES workspace_plan(id),
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			PRIMARY KEY (plan_id, path)
		)`,
		`CREATE TABLE IF NOT EXISTS plan_chat_message (
			plan_id TEXT NOT NULL REFERENCES workspace_plan(id),
			message_id TEXT NOT NULL,
			PRIMARY KEY (plan_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS str_replace_log (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			file_path TEXT NOT NULL,
			found INTEGER NOT NULL,
			old_str TEXT NOT NULL,
			new_str TEXT NOT NULL,
			updated_content TEXT NOT NULL,
			old_str_len INTEGER NOT NULL,
			new_str_len INTEGER NOT NULL,
			context_before TEXT,
			context_after TEXT,
			error_message TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec("UPDATE schema_version SET version = ?", version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}
