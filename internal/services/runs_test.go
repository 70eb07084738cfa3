package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qredence/handoff-bridge/internal/logging"
	"github.com/Qredence/handoff-bridge/internal/repository"
	"github.com/Qredence/handoff-bridge/pkg/models"
)

func newTestService(t *testing.T) (*RunService, repository.Store) {
	t.Helper()
	store, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRunService(store, logging.Nop()), store
}

func TestEnsureWorkflow_MarshalsConfig(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	wf, err := svc.EnsureWorkflow(ctx, "support", "", map[string]any{"coordinator": "triage_agent"})
	require.NoError(t, err)
	assert.Equal(t, "support", wf.ID)
	assert.Equal(t, "support", wf.Name, "name defaults to entity id")
	assert.JSONEq(t, `{"coordinator":"triage_agent"}`, wf.Config)

	empty, err := svc.EnsureWorkflow(ctx, "empty", "Empty", nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty.Config)
}

func TestEnsureRun_ReusesRunForKey(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	first, err := svc.EnsureRun(ctx, "support", "conv_abcd1234")
	require.NoError(t, err)
	assert.Regexp(t, `^run_[0-9a-f]{12}$`, first)

	second, err := svc.EnsureRun(ctx, "support", "conv_abcd1234")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Only one run_started entry despite two ensure calls.
	entries, err := store.ListAudit(ctx, first)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditRunStarted, entries[0].Type)

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].Detail), &detail))
	assert.Equal(t, "support", detail["entity_id"])
	assert.Equal(t, "conv_abcd1234", detail["conv_key"])
}

func TestEnsureRun_ConcurrentFirstRequestsShareOneRun(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	const workers = 8
	runIDs := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runID, err := svc.EnsureRun(ctx, "support", "conv_raced000")
			assert.NoError(t, err)
			runIDs[i] = runID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Equal(t, runIDs[0], runIDs[i])
	}

	runs, err := store.ListRuns(ctx, "support")
	require.NoError(t, err)
	require.Len(t, runs, 1)

	entries, err := store.ListAudit(ctx, runIDs[0])
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditRunStarted, entries[0].Type)
}

func TestEnsureRun_DistinctKeysGetDistinctRuns(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	a, err := svc.EnsureRun(ctx, "support", "conv_aaaa0000")
	require.NoError(t, err)
	b, err := svc.EnsureRun(ctx, "support", "conv_bbbb0000")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestUpdateStatus_NoIndexedRunIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	err := svc.UpdateStatus(ctx, "conv_unknown0", models.RunStatusCompleted, "", "", true)
	assert.NoError(t, err)
}

func TestUpdateStatus_TransitionsRun(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	runID, err := svc.EnsureRun(ctx, "support", "conv_abcd1234")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, "conv_abcd1234", models.RunStatusRunning, "triage_agent", "", false))
	require.NoError(t, svc.UpdateStatus(ctx, "conv_abcd1234", models.RunStatusCompleted, "", "", true))

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.NotNil(t, run.CurrentStep)
	assert.Equal(t, "triage_agent", *run.CurrentStep)
	require.NotNil(t, run.CompletedAt)

	// run_started plus two status entries.
	entries, err := store.ListAudit(ctx, runID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.AuditStatus, entries[1].Type)
	assert.Equal(t, models.AuditStatus, entries[2].Type)
}

func TestUpdateStatus_FailureRecordsError(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	runID, err := svc.EnsureRun(ctx, "support", "conv_dead0000")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, "conv_dead0000", models.RunStatusFailed, "", "upstream model unavailable", true))

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.LastError)
	assert.Equal(t, "upstream model unavailable", *run.LastError)
	assert.NotNil(t, run.CompletedAt)
}

func TestRecordHandoff(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	runID, err := svc.EnsureRun(ctx, "support", "conv_abcd1234")
	require.NoError(t, err)

	require.NoError(t, svc.RecordHandoff(ctx, runID, "triage_agent", "billing_agent", "billing question"))

	entries, err := store.ListAudit(ctx, runID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditHandoffInitiated, entries[1].Type)

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[1].Detail), &detail))
	assert.Equal(t, "triage_agent", detail["from_agent"])
	assert.Equal(t, "billing_agent", detail["to_agent"])
	assert.Equal(t, "billing question", detail["reason"])
}

func TestRecordHandoff_UnknownRun(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.RecordHandoff(context.Background(), "run_missing", "triage_agent", "billing_agent", "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReleaseKey_ForcesFreshRun(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	first, err := svc.EnsureRun(ctx, "support", "conv_abcd1234")
	require.NoError(t, err)

	svc.ReleaseKey("conv_abcd1234")
	_, ok := svc.RunID("conv_abcd1234")
	assert.False(t, ok)

	second, err := svc.EnsureRun(ctx, "support", "conv_abcd1234")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
