package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/zargar/internal/client"
	"github.com/edvin/zargar/internal/model"
)

var (
	restoreBackupID string
	restoreConfirm  string
	restoreWait     bool
	restorePoll     time.Duration
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore tenant schemas and follow restore jobs",
}

var restoreTenantCmd = &cobra.Command{
	Use:   "tenant <tenant-schema>",
	Short: "Restore a tenant schema from a completed backup",
	Long: `Restore a tenant schema from a completed backup.

The current schema is snapshotted, dropped and replaced. --confirm must be the
tenant's domain exactly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		out, err := c.RestoreTenant(cmd.Context(), args[0], restoreBackupID, restoreConfirm)
		if err != nil {
			return err
		}
		return reportRestore(cmd.Context(), c, out.RestoreJobID, out)
	},
}

var restoreSnapshotCmd = &cobra.Command{
	Use:   "snapshot <snapshot-id>",
	Short: "Restore a tenant from one of its snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		out, err := c.RestoreSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return reportRestore(cmd.Context(), c, out.RestoreJobID, out)
	},
}

var restoreStatusCmd = &cobra.Command{
	Use:   "status <restore-job-id>",
	Short: "Show a restore job and its recent log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().RestoreStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(status)
		}
		fmt.Printf("ID:       %s\n", status.RestoreJobID)
		fmt.Printf("Type:     %s\n", status.RestoreType)
		fmt.Printf("Tenant:   %s\n", status.TargetTenantSchema)
		fmt.Printf("Status:   %s (%d%%)\n", status.Status, status.ProgressPercentage)
		fmt.Printf("Started:  %s\n", formatTime(status.StartedAt))
		fmt.Printf("Finished: %s\n", formatTime(status.CompletedAt))
		if status.ErrorMessage != "" {
			fmt.Printf("Error:    %s\n", status.ErrorMessage)
		}
		printLog(status.LogMessages)
		return nil
	},
}

var restoreCancelCmd = &cobra.Command{
	Use:   "cancel <restore-job-id>",
	Short: "Cancel a pending or running restore",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := newClient().CancelRestore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out)
		}
		fmt.Printf("Cancellation requested for restore %s (status: %s)\n", out.RestoreJobID, out.Status)
		return nil
	},
}

func init() {
	restoreTenantCmd.Flags().StringVar(&restoreBackupID, "backup", "", "Backup job ID to restore from (required)")
	restoreTenantCmd.Flags().StringVar(&restoreConfirm, "confirm", "", "Tenant domain, typed out to confirm (required)")
	restoreTenantCmd.MarkFlagRequired("backup")
	restoreTenantCmd.MarkFlagRequired("confirm")

	for _, c := range []*cobra.Command{restoreTenantCmd, restoreSnapshotCmd} {
		c.Flags().BoolVar(&restoreWait, "wait", false, "Wait for the restore to finish")
		c.Flags().DurationVar(&restorePoll, "poll", 5*time.Second, "Status poll interval with --wait")
	}

	restoreCmd.AddCommand(restoreTenantCmd, restoreSnapshotCmd, restoreStatusCmd, restoreCancelCmd)
	rootCmd.AddCommand(restoreCmd)
}

func reportRestore(ctx context.Context, c *client.Client, id string, out any) error {
	if !restoreWait {
		if jsonOutput {
			return printJSON(out)
		}
		fmt.Printf("Restore %s started\n", id)
		return nil
	}

	last := -1
	for {
		status, err := c.RestoreStatus(ctx, id)
		if err != nil {
			return err
		}
		if status.ProgressPercentage != last && !jsonOutput {
			fmt.Printf("%s %d%%\n", status.Status, status.ProgressPercentage)
			last = status.ProgressPercentage
		}
		if model.IsTerminalJobStatus(status.Status) {
			if jsonOutput {
				return printJSON(status)
			}
			if status.Status != model.JobStatusCompleted {
				return fmt.Errorf("restore %s %s: %s", id, status.Status, status.ErrorMessage)
			}
			fmt.Printf("Restore %s completed\n", id)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(restorePoll):
		}
	}
}
