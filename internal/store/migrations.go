package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// schemaVersion is bumped whenever a migration step is appended.
const schemaVersion = "2"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Lookup indexes for per-run reads, added after the first schema.
	if err := s.migrateRunIndexes(); err != nil {
		return fmt.Errorf("migrating run indexes: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id             TEXT PRIMARY KEY,
			profile        TEXT NOT NULL,
			input_dir      TEXT NOT NULL DEFAULT '',
			started_at     DATETIME NOT NULL,
			duration_ms    INTEGER NOT NULL DEFAULT 0,
			files_scanned  INTEGER NOT NULL DEFAULT 0,
			files_imported INTEGER NOT NULL DEFAULT 0,
			observations   INTEGER NOT NULL DEFAULT 0,
			entities       INTEGER NOT NULL DEFAULT 0,
			groups_count   INTEGER NOT NULL DEFAULT 0
		)`,

		// Row and column order of each matrix; cells alone cannot carry
		// all-zero rows or explicitly ordered columns.
		`CREATE TABLE IF NOT EXISTS matrix_axes (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			name   TEXT NOT NULL,
			axis   TEXT NOT NULL CHECK (axis IN ('row', 'col')),
			pos    INTEGER NOT NULL,
			label  TEXT NOT NULL,
			PRIMARY KEY (run_id, name, axis, pos)
		)`,

		// Non-zero cells only.
		`CREATE TABLE IF NOT EXISTS matrix_cells (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			name     TEXT NOT NULL,
			row_key  TEXT NOT NULL,
			col_key  TEXT NOT NULL,
			value    INTEGER NOT NULL,
			PRIMARY KEY (run_id, name, row_key, col_key)
		)`,

		`CREATE TABLE IF NOT EXISTS diagnostics (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			kind     TEXT NOT NULL,
			group_key TEXT NOT NULL DEFAULT '',
			source   TEXT NOT NULL DEFAULT '',
			file     TEXT NOT NULL DEFAULT '',
			line     INTEGER NOT NULL DEFAULT 0,
			message  TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// migrateRunIndexes adds the indexes used by run listing and diagnostics
// lookup.
func (s *SQLiteStore) migrateRunIndexes() error {
	done, err := s.isMetaFlagEnabled("run_indexes_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id, kind)`,
	}
	for _, ddl := range indexes {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("creating run index: %w", err)
		}
	}

	if _, err := s.db.Exec("UPDATE meta SET value = ? WHERE key = 'schema_version'", schemaVersion); err != nil {
		return fmt.Errorf("updating schema version: %w", err)
	}
	return s.setMetaFlag("run_indexes_v1")
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
