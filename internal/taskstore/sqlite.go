// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/docflow/internal/task"
)

// SQLiteFile is the database file created inside the tasks directory.
const SQLiteFile = "tasks.db"

// SQLite keeps task records in a single database. The summary columns
// serve List without decoding every record body.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates dir/tasks.db and its schema.
func NewSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating tasks directory: %v", task.ErrStore, err)
	}

	dbPath := filepath.Join(dir, SQLiteFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", task.ErrStore, err)
	}

	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", task.ErrStore, err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			input_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			record TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_type ON tasks(task_type)`,
		`CREATE TABLE IF NOT EXISTS cancel_requests (
			task_id TEXT PRIMARY KEY,
			requested_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Put upserts the record in one transaction.
func (s *SQLite) Put(ctx context.Context, rec *task.Record) error {
	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	c := rec.Counts()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", task.ErrStore, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, task_type, status, input_path, output_path,
			total, succeeded, failed, skipped, pending, created_at, updated_at, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			task_type=excluded.task_type, status=excluded.status,
			input_path=excluded.input_path, output_path=excluded.output_path,
			total=excluded.total, succeeded=excluded.succeeded, failed=excluded.failed,
			skipped=excluded.skipped, pending=excluded.pending,
			updated_at=excluded.updated_at, record=excluded.record`,
		rec.ID, string(rec.Type), string(rec.Status), rec.InputPath, rec.OutputPath,
		c.Total, c.Succeeded, c.Failed, c.Skipped, c.Pending,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("%w: upserting task %s: %v", task.ErrStore, rec.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing task %s: %v", task.ErrStore, rec.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*task.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM tasks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", task.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading task %s: %v", task.ErrStore, id, err)
	}
	return decodeRecord(id, []byte(data))
}

// List reads summaries from the indexed columns, newest first. Timestamps
// not needed for listing stay zero.
func (s *SQLite) List(ctx context.Context) ([]task.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_type, status, input_path, output_path,
			total, succeeded, failed, skipped, pending, created_at, updated_at
		 FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing tasks: %v", task.ErrStore, err)
	}
	defer rows.Close()

	var out []task.Summary
	for rows.Next() {
		var (
			sum              task.Summary
			typ, status      string
			created, updated string
		)
		if err := rows.Scan(&sum.ID, &typ, &status, &sum.InputPath, &sum.OutputPath,
			&sum.Counts.Total, &sum.Counts.Succeeded, &sum.Counts.Failed,
			&sum.Counts.Skipped, &sum.Counts.Pending, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: scanning task row: %v", task.ErrStore, err)
		}
		sum.Type = task.Type(typ)
		sum.Status = task.Status(status)
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating tasks: %v", task.ErrStore, err)
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", task.ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: deleting task %s: %v", task.ErrStore, id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cancel_requests WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("%w: deleting cancel request %s: %v", task.ErrStore, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing delete %s: %v", task.ErrStore, id, err)
	}
	return nil
}

func (s *SQLite) RequestCancel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cancel_requests (task_id, requested_at) VALUES (?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET requested_at=excluded.requested_at`,
		id, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: requesting cancel for %s: %v", task.ErrStore, id, err)
	}
	return nil
}

func (s *SQLite) CancelRequested(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM cancel_requests WHERE task_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: checking cancel request for %s: %v", task.ErrStore, id, err)
	}
	return n > 0, nil
}

func (s *SQLite) ClearCancel(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cancel_requests WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("%w: clearing cancel request for %s: %v", task.ErrStore, id, err)
	}
	return nil
}
