package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Qredence/handoff-bridge/pkg/models"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored timestamps
// sort lexicographically in creation order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a file-backed Store implementation using the pure-Go
// modernc.org/sqlite driver. It is the default backend.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and initializes the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// The sqlite driver does not tolerate concurrent writers on one file.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			current_step TEXT,
			entity_id TEXT NOT NULL,
			conv_key TEXT NOT NULL,
			last_error TEXT
		);
		CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			detail TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
	)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// EnsureWorkflow inserts the record if absent and returns the stored row.
func (s *SQLiteStore) EnsureWorkflow(ctx context.Context, id, name, config string) (*models.WorkflowRecord, error) {
	if config == "" {
		config = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, config, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		id, name, config, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("ensure workflow %q: %w", id, err)
	}
	return s.GetWorkflow(ctx, id)
}

// GetWorkflow returns the workflow record or ErrNotFound.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, config, created_at FROM workflows WHERE id = ?`, id)
	var wf models.WorkflowRecord
	var createdAt string
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Config, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workflow %q: %w", id, err)
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("get workflow %q: %w", id, err)
	}
	wf.CreatedAt = created
	return &wf, nil
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, status, started_at, completed_at, current_step, entity_id, conv_key, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.Status,
		run.StartedAt.UTC().Format(timeLayout),
		formatTimePtr(run.CompletedAt), run.CurrentStep,
		run.EntityID, run.ConvKey, run.LastError,
	)
	if err != nil {
		return fmt.Errorf("create run %q: %w", run.ID, err)
	}
	return nil
}

// GetRun returns the run record or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, started_at, completed_at, current_step, entity_id, conv_key, last_error
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run %q: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the runs of a workflow, most recently started first.
func (s *SQLiteStore) ListRuns(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, status, started_at, completed_at, current_step, entity_id, conv_key, last_error
		FROM runs WHERE workflow_id = ? ORDER BY started_at DESC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list runs for %q: %w", workflowID, err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs for %q: %w", workflowID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRun overwrites the mutable status fields of a run.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.RunRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, completed_at = ?, current_step = ?, last_error = ?
		WHERE id = ?`,
		run.Status, formatTimePtr(run.CompletedAt), run.CurrentStep, run.LastError, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %q: %w", run.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAudit appends an audit entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, run_id, type, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.Type, entry.Detail,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("append audit for run %q: %w", entry.RunID, err)
	}
	return nil
}

// ListAudit returns a run's audit entries in creation order.
func (s *SQLiteStore) ListAudit(ctx context.Context, runID string) ([]*models.AuditLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, type, detail, created_at
		FROM audit_logs WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list audit for run %q: %w", runID, err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("list audit for run %q: %w", runID, err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("list audit for run %q: %w", runID, err)
		}
		e.CreatedAt = created
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.RunRecord, error) {
	var run models.RunRecord
	var startedAt string
	var completedAt sql.NullString
	if err := row.Scan(
		&run.ID, &run.WorkflowID, &run.Status, &startedAt, &completedAt,
		&run.CurrentStep, &run.EntityID, &run.ConvKey, &run.LastError,
	); err != nil {
		return nil, err
	}
	started, err := parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	run.StartedAt = started
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt stored timestamp %q: %w", s, err)
	}
	return t, nil
}
