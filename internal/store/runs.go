package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/annotally/internal/aggregate"
	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/matrix"
)

// ErrNotFound is returned when a run or matrix does not exist.
var ErrNotFound = errors.New("not found")

// SaveRun stores run with its matrices and diagnostics in one transaction
// and returns the run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, profile, input_dir, started_at, duration_ms, files_scanned, files_imported, observations, entities, groups_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Profile, run.InputDir, run.StartedAt.UTC(), run.Duration.Milliseconds(),
		run.FilesScanned, run.FilesImported, run.Observations, run.Entities, run.Groups,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	names := make([]string, 0, len(run.Matrices))
	for name := range run.Matrices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.insertMatrix(ctx, tx, run.ID, name, run.Matrices[name]); err != nil {
			return "", fmt.Errorf("matrix %s: %w", name, err)
		}
	}
	if err := s.insertDiagnostics(ctx, tx, run.ID, run.Diagnostics); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return run.ID, nil
}

func (s *SQLiteStore) insertMatrix(ctx context.Context, tx *sql.Tx, runID, name string, m *matrix.Matrix) error {
	axis, err := tx.PrepareContext(ctx,
		`INSERT INTO matrix_axes (run_id, name, axis, pos, label) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing axis statement: %w", err)
	}
	defer axis.Close()

	for i, r := range m.Rows {
		if _, err := axis.ExecContext(ctx, runID, name, "row", i, r); err != nil {
			return fmt.Errorf("inserting row %s: %w", r, err)
		}
	}
	for j, c := range m.Columns {
		if _, err := axis.ExecContext(ctx, runID, name, "col", j, c); err != nil {
			return fmt.Errorf("inserting column %s: %w", c, err)
		}
	}

	cell, err := tx.PrepareContext(ctx,
		`INSERT INTO matrix_cells (run_id, name, row_key, col_key, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing cell statement: %w", err)
	}
	defer cell.Close()

	for i, r := range m.Rows {
		for j, v := range m.Cells[i] {
			if v == 0 {
				continue
			}
			if _, err := cell.ExecContext(ctx, runID, name, r, m.Columns[j], v); err != nil {
				return fmt.Errorf("inserting cell %s/%s: %w", r, m.Columns[j], err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) insertDiagnostics(ctx context.Context, tx *sql.Tx, runID string, diags []diag.Diagnostic) error {
	for i := 0; i < len(diags); i += s.batchSize {
		end := i + s.batchSize
		if end > len(diags) {
			end = len(diags)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO diagnostics (run_id, kind, group_key, source, file, line, message) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing diagnostic statement: %w", err)
		}
		for _, d := range diags[i:end] {
			if _, err := stmt.ExecContext(ctx, runID, string(d.Kind), d.Group, d.Source, d.File, d.Line, d.Message); err != nil {
				stmt.Close()
				return fmt.Errorf("inserting diagnostics %d-%d: %w", i, end, err)
			}
		}
		stmt.Close()
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.profile, r.input_dir, r.started_at, r.duration_ms, r.entities, r.groups_count,
		        (SELECT COUNT(*) FROM diagnostics d WHERE d.run_id = r.id)
		 FROM runs r ORDER BY r.started_at DESC, r.id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	var out []*RunSummary
	for rows.Next() {
		var (
			r  RunSummary
			ms int64
		)
		if err := rows.Scan(&r.ID, &r.Profile, &r.InputDir, &r.StartedAt, &ms, &r.Entities, &r.Groups, &r.Diagnostics); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, r := range out {
		names, err := s.matrixNames(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		r.Matrices = names
	}
	return out, nil
}

func (s *SQLiteStore) matrixNames(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM matrix_axes WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing matrices: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// LoadMatrix rebuilds a stored matrix with its original row and column
// order.
func (s *SQLiteStore) LoadMatrix(ctx context.Context, runID, name string) (*matrix.Matrix, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT axis, label FROM matrix_axes WHERE run_id = ? AND name = ? ORDER BY axis, pos`, runID, name)
	if err != nil {
		return nil, fmt.Errorf("loading matrix axes: %w", err)
	}
	var opts matrix.Options
	freqs := map[string]aggregate.FrequencyMap{}
	for rows.Next() {
		var axis, label string
		if err := rows.Scan(&axis, &label); err != nil {
			rows.Close()
			return nil, err
		}
		if axis == "row" {
			opts.Rows = append(opts.Rows, label)
			freqs[label] = aggregate.FrequencyMap{}
		} else {
			opts.Columns = append(opts.Columns, label)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(opts.Rows) == 0 && len(opts.Columns) == 0 {
		return nil, fmt.Errorf("matrix %s of run %s: %w", name, runID, ErrNotFound)
	}

	cells, err := s.db.QueryContext(ctx,
		`SELECT row_key, col_key, value FROM matrix_cells WHERE run_id = ? AND name = ?`, runID, name)
	if err != nil {
		return nil, fmt.Errorf("loading matrix cells: %w", err)
	}
	defer cells.Close()
	for cells.Next() {
		var (
			r, c string
			v    int
		)
		if err := cells.Scan(&r, &c, &v); err != nil {
			return nil, err
		}
		freqs[r][c] = v
	}
	if err := cells.Err(); err != nil {
		return nil, err
	}
	return matrix.Build(freqs, opts), nil
}

// Diagnostics returns the diagnostics saved with a run in insertion order.
func (s *SQLiteStore) Diagnostics(ctx context.Context, runID string) ([]diag.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, group_key, source, file, line, message FROM diagnostics WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading diagnostics: %w", err)
	}
	defer rows.Close()

	var out []diag.Diagnostic
	for rows.Next() {
		var (
			d    diag.Diagnostic
			kind string
		)
		if err := rows.Scan(&kind, &d.Group, &d.Source, &d.File, &d.Line, &d.Message); err != nil {
			return nil, err
		}
		d.Kind = diag.Kind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}
