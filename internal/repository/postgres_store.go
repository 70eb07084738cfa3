package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Qredence/handoff-bridge/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to the database at the given DSN, verifies the
// connection and initializes the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool without schema initialization.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// InitSchema creates the bridge tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error { return s.initSchema(ctx) }

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
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
			created_at TIMESTAMPTZ NOT NULL
		);`,
	)
	if err != nil {
		return fmt.Errorf("init postgres schema: %w", err)
	}
	return nil
}

// EnsureWorkflow inserts the record if absent and returns the stored row.
func (s *PostgresStore) EnsureWorkflow(ctx context.Context, id, name, config string) (*models.WorkflowRecord, error) {
	if config == "" {
		config = "{}"
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO workflows (id, name, config, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO NOTHING`,
		id, name, config,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure workflow %q: %w", id, err)
	}
	return s.GetWorkflow(ctx, id)
}

// GetWorkflow returns the workflow record or ErrNotFound.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	var wf models.WorkflowRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, name, config, created_at FROM workflows WHERE id = $1`, id,
	).Scan(&wf.ID, &wf.Name, &wf.Config, &wf.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workflow %q: %w", id, err)
	}
	return &wf, nil
}

// CreateRun inserts a new run record.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.RunRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO runs (id, workflow_id, status, started_at, completed_at, current_step, entity_id, conv_key, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.WorkflowID, run.Status, run.StartedAt, run.CompletedAt,
		run.CurrentStep, run.EntityID, run.ConvKey, run.LastError,
	)
	if err != nil {
		return fmt.Errorf("create run %q: %w", run.ID, err)
	}
	return nil
}

// GetRun returns the run record or ErrNotFound.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, workflow_id, status, started_at, completed_at, current_step, entity_id, conv_key, last_error
		FROM runs WHERE id = $1`, id,
	).Scan(
		&run.ID, &run.WorkflowID, &run.Status, &run.StartedAt, &run.CompletedAt,
		&run.CurrentStep, &run.EntityID, &run.ConvKey, &run.LastError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run %q: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the runs of a workflow, most recently started first.
func (s *PostgresStore) ListRuns(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, workflow_id, status, started_at, completed_at, current_step, entity_id, conv_key, last_error
		FROM runs WHERE workflow_id = $1 ORDER BY started_at DESC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list runs for %q: %w", workflowID, err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		var run models.RunRecord
		if err := rows.Scan(
			&run.ID, &run.WorkflowID, &run.Status, &run.StartedAt, &run.CompletedAt,
			&run.CurrentStep, &run.EntityID, &run.ConvKey, &run.LastError,
		); err != nil {
			return nil, fmt.Errorf("list runs for %q: %w", workflowID, err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// UpdateRun overwrites the mutable status fields of a run.
func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.RunRecord) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE runs SET status = $1, completed_at = $2, current_step = $3, last_error = $4
		WHERE id = $5`,
		run.Status, run.CompletedAt, run.CurrentStep, run.LastError, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %q: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAudit appends an audit entry.
func (s *PostgresStore) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_logs (id, run_id, type, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.RunID, entry.Type, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit for run %q: %w", entry.RunID, err)
	}
	return nil
}

// ListAudit returns a run's audit entries in creation order.
func (s *PostgresStore) ListAudit(ctx context.Context, runID string) ([]*models.AuditLogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, run_id, type, detail, created_at
		FROM audit_logs WHERE run_id = $1 ORDER BY created_at ASC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list audit for run %q: %w", runID, err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list audit for run %q: %w", runID, err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
