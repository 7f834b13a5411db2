package database

import (
	"fmt"
	"log/slog"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

const schemaVersionSQL = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`

// migrations run in order on both SQLite and PostgreSQL, so they stick to the common subset
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_kv_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS kv (
				namespace TEXT NOT NULL,
				key TEXT NOT NULL,
				value TEXT NOT NULL,
				updated_at BIGINT NOT NULL,
				PRIMARY KEY (namespace, key)
			)`,
	},
	{
		Version: 2,
		Name:    "create_export_jobs_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS export_jobs (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				format TEXT NOT NULL,
				status TEXT NOT NULL,
				storage_path TEXT NOT NULL DEFAULT '',
				file_name TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
	},
	{
		Version: 3,
		Name:    "index_export_jobs_session",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_export_jobs_session_id ON export_jobs(session_id)`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	logger := slog.Default().With("component", "database", "dialect", string(db.dialect))

	if _, err := db.conn.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	logger.Debug("current schema version", "version", currentVersion)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(db.rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"),
			migration.Version, time.Now().Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		logger.Info("applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}

// SchemaVersion returns the highest applied migration
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
