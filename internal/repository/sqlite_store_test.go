package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qredence/handoff-bridge/pkg/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_EnsureWorkflowIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, err := store.EnsureWorkflow(ctx, "wf_demo", "Demo", `{"coordinator":"triage_agent"}`)
	require.NoError(t, err)
	assert.Equal(t, "wf_demo", first.ID)
	assert.Equal(t, "Demo", first.Name)
	assert.False(t, first.CreatedAt.IsZero())

	// A second ensure with different values keeps the original row.
	second, err := store.EnsureWorkflow(ctx, "wf_demo", "Renamed", `{}`)
	require.NoError(t, err)
	assert.Equal(t, "Demo", second.Name)
	assert.Equal(t, first.Config, second.Config)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestSQLiteStore_EnsureWorkflowDefaultsConfig(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	wf, err := store.EnsureWorkflow(ctx, "wf_empty", "Empty", "")
	require.NoError(t, err)
	assert.Equal(t, "{}", wf.Config)
}

func TestSQLiteStore_GetWorkflowNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetWorkflow(context.Background(), "wf_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.EnsureWorkflow(ctx, "wf_demo", "Demo", "{}")
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Millisecond)
	run := &models.RunRecord{
		ID:         "run_000000000001",
		WorkflowID: "wf_demo",
		Status:     models.RunStatusRunning,
		StartedAt:  started,
		EntityID:   "support",
		ConvKey:    "conv_abcd1234",
	}
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Equal(t, "conv_abcd1234", got.ConvKey)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.LastError)

	completed := started.Add(2 * time.Second)
	step := "billing_agent"
	got.Status = models.RunStatusCompleted
	got.CompletedAt = &completed
	got.CurrentStep = &step
	require.NoError(t, store.UpdateRun(ctx, got))

	final, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.True(t, final.CompletedAt.Equal(completed))
	require.NotNil(t, final.CurrentStep)
	assert.Equal(t, "billing_agent", *final.CurrentStep)
}

func TestSQLiteStore_RunFailureFields(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	run := &models.RunRecord{
		ID:         "run_000000000002",
		WorkflowID: "wf_demo",
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
		EntityID:   "support",
		ConvKey:    "conv_dead0000",
	}
	require.NoError(t, store.CreateRun(ctx, run))

	msg := "model call failed"
	run.Status = models.RunStatusFailed
	run.LastError = &msg
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, msg, *got.LastError)
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRun(context.Background(), "run_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpdateRunNotFound(t *testing.T) {
	store := openTestStore(t)
	err := store.UpdateRun(context.Background(), &models.RunRecord{
		ID:     "run_missing",
		Status: models.RunStatusCompleted,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"run_old00000000", "run_mid00000000", "run_new00000000"} {
		require.NoError(t, store.CreateRun(ctx, &models.RunRecord{
			ID:         id,
			WorkflowID: "wf_demo",
			Status:     models.RunStatusRunning,
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			EntityID:   "support",
			ConvKey:    "conv_00000000",
		}))
	}

	runs, err := store.ListRuns(ctx, "wf_demo")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run_new00000000", runs[0].ID)
	assert.Equal(t, "run_mid00000000", runs[1].ID)
	assert.Equal(t, "run_old00000000", runs[2].ID)

	other, err := store.ListRuns(ctx, "wf_other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteStore_AuditOrdering(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	at := time.Now().UTC()
	types := []string{
		models.AuditRunStarted,
		models.AuditHandoffInitiated,
		models.AuditStatus,
	}
	for i, typ := range types {
		require.NoError(t, store.AppendAudit(ctx, &models.AuditLogEntry{
			ID:        "audit_" + typ,
			RunID:     "run_000000000001",
			Type:      typ,
			Detail:    "{}",
			CreatedAt: at.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	entries, err := store.ListAudit(ctx, "run_000000000001")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, typ := range types {
		assert.Equal(t, typ, entries[i].Type)
	}

	none, err := store.ListAudit(ctx, "run_other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_CorruptTimestampSurfacesError(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, config, created_at)
		VALUES ('wf_bad', 'Bad', '{}', 'not-a-timestamp')`)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, status, started_at, entity_id, conv_key)
		VALUES ('run_bad0000000', 'wf_bad', 'running', 'not-a-timestamp', 'support', 'conv_bad00000')`)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, run_id, type, detail, created_at)
		VALUES ('audit_bad', 'run_bad0000000', 'status', '{}', 'not-a-timestamp')`)
	require.NoError(t, err)

	_, err = store.GetWorkflow(ctx, "wf_bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt stored timestamp")

	_, err = store.GetRun(ctx, "run_bad0000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt stored timestamp")

	_, err = store.ListAudit(ctx, "run_bad0000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt stored timestamp")
}

func TestSQLiteStore_AuditOrderingSameTimestamp(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	// Entries created in the same instant keep insertion order.
	at := time.Now().UTC()
	for _, id := range []string{"audit_a", "audit_b", "audit_c"} {
		require.NoError(t, store.AppendAudit(ctx, &models.AuditLogEntry{
			ID:        id,
			RunID:     "run_tied",
			Type:      models.AuditStatus,
			Detail:    "{}",
			CreatedAt: at,
		}))
	}

	entries, err := store.ListAudit(ctx, "run_tied")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "audit_a", entries[0].ID)
	assert.Equal(t, "audit_b", entries[1].ID)
	assert.Equal(t, "audit_c", entries[2].ID)
}
