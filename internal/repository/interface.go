// Package repository persists workflow definitions, runs and the append-only
// audit log. Two backends are provided: a file-backed SQLite store (default)
// and PostgreSQL.
package repository

import (
	"context"
	"errors"

	"github.com/Qredence/handoff-bridge/pkg/models"
)

// ErrNotFound is returned when a requested workflow or run id is absent.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface of the bridge. Every mutation is an
// individual commit; callers must tolerate partial completion across a
// request's several calls as an operational error.
type Store interface {
	// EnsureWorkflow inserts the workflow record if absent and returns the
	// stored row. An existing record is never overwritten.
	EnsureWorkflow(ctx context.Context, id, name, config string) (*models.WorkflowRecord, error)
	// GetWorkflow returns the workflow record or ErrNotFound.
	GetWorkflow(ctx context.Context, id string) (*models.WorkflowRecord, error)

	// CreateRun inserts a new run record.
	CreateRun(ctx context.Context, run *models.RunRecord) error
	// GetRun returns the run record or ErrNotFound.
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns the runs of a workflow, most recently started first.
	ListRuns(ctx context.Context, workflowID string) ([]*models.RunRecord, error)
	// UpdateRun overwrites the mutable status fields of a run. Returns
	// ErrNotFound if the run row is gone.
	UpdateRun(ctx context.Context, run *models.RunRecord) error

	// AppendAudit appends an audit entry.
	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
	// ListAudit returns a run's audit entries in creation order.
	ListAudit(ctx context.Context, runID string) ([]*models.AuditLogEntry, error)

	// Close releases the backend's resources.
	Close() error
}
