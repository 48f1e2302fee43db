package main

import (
	"fmt"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/zargar/internal/activity"
	"github.com/edvin/zargar/internal/config"
	"github.com/edvin/zargar/internal/logging"
	"github.com/edvin/zargar/internal/platform"
	"github.com/edvin/zargar/internal/workflow"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Snapshot maintenance",
}

var cleanupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Delete expired snapshots now instead of waiting for the hourly schedule",
	Long: `Delete expired snapshots now instead of waiting for the hourly schedule.

Talks to Temporal directly, so CORE_DATABASE_URL, TEMPORAL_ADDRESS and the
TEMPORAL_TLS_* settings must be available in the environment.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		clientOpts, err := cfg.TemporalClientOptions()
		if err != nil {
			return fmt.Errorf("configure temporal: %w", err)
		}
		clientOpts.Logger = logging.NewTemporalLogger(logging.NewLogger(cfg, "zargarctl"))
		tc, err := temporalclient.Dial(clientOpts)
		if err != nil {
			return fmt.Errorf("connect to temporal: %w", err)
		}
		defer tc.Close()

		run, err := tc.ExecuteWorkflow(cmd.Context(), temporalclient.StartWorkflowOptions{
			ID:        platform.NewName("snapshot-cleanup-manual-"),
			TaskQueue: cfg.TaskQueue,
		}, workflow.CleanupExpiredSnapshotsWorkflow)
		if err != nil {
			return fmt.Errorf("start CleanupExpiredSnapshotsWorkflow: %w", err)
		}

		var result activity.CleanupResult
		if err := run.Get(cmd.Context(), &result); err != nil {
			return fmt.Errorf("cleanup workflow %s: %w", run.GetID(), err)
		}

		if jsonOutput {
			return printJSON(result)
		}
		fmt.Printf("Expired: %d, deleted: %d, errors: %d\n",
			result.TotalExpired, result.DeletedSuccessfully, result.DeletionErrors)
		return nil
	},
}

func init() {
	cleanupCmd.AddCommand(cleanupRunCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func loadCLIConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate("cli"); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
