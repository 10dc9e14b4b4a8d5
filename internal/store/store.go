// Package store provides optional SQLite persistence of aggregation runs.
//
// Each saved run keeps its metadata, every matrix it produced (axes plus
// non-zero cells) and its diagnostics, so matrices from earlier runs can be
// reloaded and compared without re-reading the inputs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/matrix"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.annotally/runs.db"

// DefaultBatchSize bounds the rows inserted per statement batch.
const DefaultBatchSize = 500

// RunRecord is one aggregation run to persist.
type RunRecord struct {
	// ID is assigned by SaveRun when empty.
	ID            string
	Profile       string
	InputDir      string
	StartedAt     time.Time
	Duration      time.Duration
	FilesScanned  int
	FilesImported int
	Observations  int
	Entities      int
	Groups        int
	// Matrices are keyed by output name (the matrix file name).
	Matrices    map[string]*matrix.Matrix
	Diagnostics []diag.Diagnostic
}

// RunSummary is the listing view of a saved run.
type RunSummary struct {
	ID          string
	Profile     string
	InputDir    string
	StartedAt   time.Time
	Duration    time.Duration
	Entities    int
	Groups      int
	Diagnostics int
	Matrices    []string
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath    string
	BatchSize int
}

// Store defines the run storage interface.
type Store interface {
	SaveRun(ctx context.Context, run *RunRecord) (string, error)
	ListRuns(ctx context.Context, limit int) ([]*RunSummary, error)
	LoadMatrix(ctx context.Context, runID, name string) (*matrix.Matrix, error)
	Diagnostics(ctx context.Context, runID string) ([]diag.Diagnostic, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	batchSize int
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.DBPath = expandPath(cfg.DBPath)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		dbPath:    cfg.DBPath,
		batchSize: cfg.BatchSize,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
