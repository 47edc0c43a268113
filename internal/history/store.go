// Package history keeps a SQLite ledger of dataset job results across runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/SorenAcevedo/uao-etl/internal/operations"
)

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRecord is one stored job result
type RunRecord struct {
	ID          string
	RunID       string
	Dataset     string
	Status      string
	State       string
	Error       string
	RowsRead    int
	RowsWritten int
	OutputPath  string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Store wraps the history database connection.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite file at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; jobs finishing together queue on this connection
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS etl_runs (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			dataset TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			rows_read INTEGER NOT NULL DEFAULT 0,
			rows_written INTEGER NOT NULL DEFAULT 0,
			output_path TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_etl_runs_dataset ON etl_runs(dataset, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_etl_runs_run ON etl_runs(run_id)`,
	}

	for _, m := range migrations {
		if _, err := s.conn.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Record inserts rec, assigning it a new ID
func (s *Store) Record(ctx context.Context, rec *RunRecord) error {
	rec.ID = uuid.New().String()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO etl_runs (id, run_id, dataset, status, state, error, rows_read, rows_written, output_path, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Dataset, rec.Status, rec.State, rec.Error, rec.RowsRead, rec.RowsWritten, rec.OutputPath,
		rec.StartedAt.UTC().Format(timeLayout), rec.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run record for %s: %w", rec.Dataset, err)
	}
	return nil
}

// RecordResult stores a job result; it satisfies operations.Recorder
func (s *Store) RecordResult(ctx context.Context, runID string, result operations.JobResult) error {
	return s.Record(ctx, FromResult(runID, result))
}

// FromResult converts a job result into a record
func FromResult(runID string, result operations.JobResult) *RunRecord {
	return &RunRecord{
		RunID:       runID,
		Dataset:     result.Dataset,
		Status:      string(result.Outcome.Status),
		State:       string(result.State),
		Error:       result.Outcome.Message,
		RowsRead:    result.Stats.RowsRead,
		RowsWritten: result.Stats.RowsWritten,
		OutputPath:  result.Stats.OutputPath,
		StartedAt:   result.Stats.StartedAt,
		FinishedAt:  result.Stats.FinishedAt,
	}
}

// ListByDataset returns the latest records for a dataset, newest first
func (s *Store) ListByDataset(ctx context.Context, dataset string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx,
		`SELECT id, run_id, dataset, status, state, error, rows_read, rows_written, output_path, started_at, finished_at
		 FROM etl_runs WHERE dataset = ? ORDER BY started_at DESC LIMIT ?`,
		dataset, limit,
	)
}

// ListByRun returns every record of one run in insertion order
func (s *Store) ListByRun(ctx context.Context, runID string) ([]RunRecord, error) {
	return s.query(ctx,
		`SELECT id, run_id, dataset, status, state, error, rows_read, rows_written, output_path, started_at, finished_at
		 FROM etl_runs WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]RunRecord, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Dataset, &r.Status, &r.State, &r.Error,
			&r.RowsRead, &r.RowsWritten, &r.OutputPath, &started, &finished); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at of %s: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at of %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
