package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Qredence/handoff-bridge/internal/config"
	"github.com/Qredence/handoff-bridge/internal/logging"
)

// seedConfig is the demo handoff topology written into the workflow record.
const seedConfig = `{"coordinator":"triage_agent","participants":["triage_agent","replacement_agent","delivery_agent","billing_agent"]}`

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo workflow record into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	}
}

func runSeed(ctx context.Context) error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer store.Close()

	wf, err := store.EnsureWorkflow(ctx, "wf_handoff_demo", "Specialist handoff demo", seedConfig)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	logger.Info("workflow seeded", "id", wf.ID, "name", wf.Name, "created_at", wf.CreatedAt)
	return nil
}
