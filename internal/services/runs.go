// Package services holds the run lifecycle service sitting between the HTTP
// handlers and the persistence layer.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Qredence/handoff-bridge/internal/logging"
	"github.com/Qredence/handoff-bridge/internal/repository"
	"github.com/Qredence/handoff-bridge/pkg/models"
)

// RunService tracks the current run per conversation key and records run
// state transitions plus audit entries in the store. The key→run index is
// process-local; it is released together with the workflow session so a
// request after session expiry starts a fresh run.
type RunService struct {
	store  repository.Store
	logger *logging.Logger

	// createMu serializes EnsureRun's check-then-create so two concurrent
	// first requests for one key cannot both insert a run row.
	createMu sync.Mutex

	mu       sync.Mutex
	convRuns map[string]string
}

// NewRunService creates a RunService on top of the given store.
func NewRunService(store repository.Store, logger *logging.Logger) *RunService {
	return &RunService{
		store:    store,
		logger:   logger,
		convRuns: make(map[string]string),
	}
}

// EnsureWorkflow idempotently creates the workflow record for an entity id.
func (s *RunService) EnsureWorkflow(ctx context.Context, entityID, name string, config map[string]any) (*models.WorkflowRecord, error) {
	if name == "" {
		name = entityID
	}
	cfg := ""
	if config != nil {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("encode workflow config: %w", err)
		}
		cfg = string(raw)
	}
	return s.store.EnsureWorkflow(ctx, entityID, name, cfg)
}

// EnsureRun returns the current run id for the conversation key, creating a
// new running run (with a run_started audit entry) when the key has none or
// the indexed row no longer exists.
func (s *RunService) EnsureRun(ctx context.Context, entityID, convKey string) (string, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	s.mu.Lock()
	runID, ok := s.convRuns[convKey]
	s.mu.Unlock()
	if ok {
		if _, err := s.store.GetRun(ctx, runID); err == nil {
			return runID, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		// Indexed row is gone; fall through and start a fresh run.
	}

	run := &models.RunRecord{
		ID:         "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		WorkflowID: entityID,
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
		EntityID:   entityID,
		ConvKey:    convKey,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.convRuns[convKey] = run.ID
	s.mu.Unlock()

	if err := s.audit(ctx, run.ID, models.AuditRunStarted, map[string]any{
		"entity_id": entityID,
		"conv_key":  convKey,
	}); err != nil {
		return "", err
	}
	return run.ID, nil
}

// UpdateStatus transitions the conversation's current run. Without an indexed
// run it is a no-op. A status audit entry is appended whenever a run is
// indexed, even if the row lookup raced with deletion; the entry records
// intent, not just committed state.
func (s *RunService) UpdateStatus(ctx context.Context, convKey, status, currentStep, lastError string, completed bool) error {
	s.mu.Lock()
	runID, ok := s.convRuns[convKey]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	run, err := s.store.GetRun(ctx, runID)
	switch {
	case err == nil:
		run.Status = status
		if currentStep != "" {
			run.CurrentStep = &currentStep
		}
		if lastError != "" {
			run.LastError = &lastError
		}
		if completed && run.CompletedAt == nil {
			now := time.Now().UTC()
			run.CompletedAt = &now
		}
		if err := s.store.UpdateRun(ctx, run); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("status update for vanished run", "run_id", runID, "conv_key", convKey)
	default:
		return err
	}

	return s.audit(ctx, runID, models.AuditStatus, map[string]any{
		"status":       status,
		"current_step": currentStep,
		"error":        lastError,
		"completed":    completed,
	})
}

// RecordHandoff appends a handoff_initiated audit entry for the run.
// Returns repository.ErrNotFound for an unknown run id.
func (s *RunService) RecordHandoff(ctx context.Context, runID, fromAgent, toAgent, reason string) error {
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return err
	}
	return s.audit(ctx, runID, models.AuditHandoffInitiated, map[string]any{
		"from_agent": fromAgent,
		"to_agent":   toAgent,
		"reason":     reason,
	})
}

// ReleaseKey drops the conversation's run index entry. Invoked by the session
// registry's eviction hook so run identity expires with the session.
func (s *RunService) ReleaseKey(convKey string) {
	s.mu.Lock()
	delete(s.convRuns, convKey)
	s.mu.Unlock()
}

// RunID returns the indexed run id for a conversation key, if any.
func (s *RunService) RunID(convKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runID, ok := s.convRuns[convKey]
	return runID, ok
}

func (s *RunService) audit(ctx context.Context, runID, typ string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}
	entry := &models.AuditLogEntry{
		ID:        "audit_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		RunID:     runID,
		Type:      typ,
		Detail:    string(raw),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("append %s audit: %w", typ, err)
	}
	return nil
}
