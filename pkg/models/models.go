package models

import (
	"time"
)

// Run status values. A run starts as running and moves to exactly one of the
// terminal states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Audit entry types written by the bridge.
const (
	AuditRunStarted       = "run_started"
	AuditStatus           = "status"
	AuditHandoffInitiated = "handoff_initiated"
)

// WorkflowRecord is the persisted definition of a workflow entity. Records
// are created idempotently on first reference to an entity id and never
// overwritten afterwards.
type WorkflowRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Config    string    `json:"config"` // opaque JSON text
	CreatedAt time.Time `json:"created_at"`
}

// RunRecord tracks one workflow execution over a conversation key.
type RunRecord struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CurrentStep *string    `json:"current_step,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	EntityID    string     `json:"entity_id"`
	ConvKey     string     `json:"conv_key"`
}

// AuditLogEntry is an immutable, timestamped record of a notable run event.
// Entries are append-only and listed in creation order per run.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Detail    string    `json:"detail"` // structured JSON text
	CreatedAt time.Time `json:"created_at"`
}
