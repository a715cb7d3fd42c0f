// Package sqlite persists run history in a SQLite database using the pure Go
// glebarez/go-sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/hupe1980/enginebridge/core"
)

// Store is a core.RunStore backed by SQLite.
type Store struct {
	DB *sql.DB
}

var _ core.RunStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and prepares the schema.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			mode TEXT NOT NULL,
			success INTEGER NOT NULL,
			error TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			steps TEXT NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs (workflow, started_at DESC);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: prepare schema: %w", err)
		}
	}

	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Save inserts rec or replaces the record with the same ID.
func (s *Store) Save(ctx context.Context, rec core.RunRecord) error {
	if rec.ID == "" {
		return errors.New("sqlite: run record without id")
	}
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("sqlite: encode steps: %w", err)
	}

	query := `INSERT INTO runs (id, workflow, mode, success, error, started_at, finished_at, steps, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs))
		ON CONFLICT(id) DO UPDATE SET
			workflow = excluded.workflow,
			mode = excluded.mode,
			success = excluded.success,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			steps = excluded.steps`
	_, err = s.DB.ExecContext(ctx, query,
		rec.ID, rec.Workflow, rec.Mode, rec.Success, rec.Error,
		rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(), string(steps))
	if err != nil {
		return fmt.Errorf("sqlite: save run %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record of a run.
func (s *Store) Get(ctx context.Context, runID string) (core.RunRecord, error) {
	query := `SELECT id, workflow, mode, success, error, started_at, finished_at, steps FROM runs WHERE id = ?`
	rec, err := scanRecord(s.DB.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RunRecord{}, fmt.Errorf("run %s: %w", runID, core.ErrRunNotFound)
	}
	return rec, err
}

// List returns the runs of workflow, newest first. A limit of zero or less
// returns every run.
func (s *Store) List(ctx context.Context, workflow string, limit int) ([]core.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, workflow, mode, success, error, started_at, finished_at, steps
		FROM runs WHERE workflow = ? ORDER BY started_at DESC, seq DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, workflow, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var out []core.RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (core.RunRecord, error) {
	var (
		rec               core.RunRecord
		errMsg            sql.NullString
		started, finished int64
		steps             string
	)
	if err := row.Scan(&rec.ID, &rec.Workflow, &rec.Mode, &rec.Success, &errMsg, &started, &finished, &steps); err != nil {
		return core.RunRecord{}, err
	}
	rec.Error = errMsg.String
	rec.StartedAt = time.Unix(0, started).UTC()
	rec.FinishedAt = time.Unix(0, finished).UTC()
	if err := json.Unmarshal([]byte(steps), &rec.Steps); err != nil {
		return core.RunRecord{}, fmt.Errorf("sqlite: decode steps of run %s: %w", rec.ID, err)
	}
	return rec, nil
}
