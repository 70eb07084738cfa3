package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Qredence/handoff-bridge/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.InitSchema(ctx))

	t.Run("EnsureWorkflow is idempotent", func(t *testing.T) {
		first, err := store.EnsureWorkflow(ctx, "wf_demo", "Demo", `{"coordinator":"triage_agent"}`)
		require.NoError(t, err)
		assert.Equal(t, "Demo", first.Name)

		second, err := store.EnsureWorkflow(ctx, "wf_demo", "Renamed", "{}")
		require.NoError(t, err)
		assert.Equal(t, "Demo", second.Name)
		assert.Equal(t, first.Config, second.Config)
	})

	t.Run("run lifecycle", func(t *testing.T) {
		run := &models.RunRecord{
			ID:         "run_pg0000000001",
			WorkflowID: "wf_demo",
			Status:     models.RunStatusRunning,
			StartedAt:  time.Now().UTC(),
			EntityID:   "support",
			ConvKey:    "conv_abcd1234",
		}
		require.NoError(t, store.CreateRun(ctx, run))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusRunning, got.Status)
		assert.Nil(t, got.CompletedAt)

		completed := time.Now().UTC()
		got.Status = models.RunStatusCompleted
		got.CompletedAt = &completed
		require.NoError(t, store.UpdateRun(ctx, got))

		final, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, final.Status)
		assert.NotNil(t, final.CompletedAt)

		runs, err := store.ListRuns(ctx, "wf_demo")
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
	})

	t.Run("audit entries keep creation order", func(t *testing.T) {
		at := time.Now().UTC()
		for i, typ := range []string{models.AuditRunStarted, models.AuditStatus} {
			require.NoError(t, store.AppendAudit(ctx, &models.AuditLogEntry{
				ID:        "audit_pg" + typ,
				RunID:     "run_pg0000000001",
				Type:      typ,
				Detail:    "{}",
				CreatedAt: at.Add(time.Duration(i) * time.Millisecond),
			}))
		}

		entries, err := store.ListAudit(ctx, "run_pg0000000001")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, models.AuditRunStarted, entries[0].Type)
		assert.Equal(t, models.AuditStatus, entries[1].Type)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetRun(ctx, "run_missing")
		assert.ErrorIs(t, err, ErrNotFound)
		err = store.UpdateRun(ctx, &models.RunRecord{ID: "run_missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
