package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edvin/zargar/internal/model"
)

var (
	snapshotType        string
	snapshotDescription string
	snapshotTenant      string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take and list tenant snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <tenant-schema>",
	Short: "Snapshot a tenant schema",
	Long: `Snapshot a tenant schema.

A manual snapshot runs in the background. A pre_operation snapshot blocks
until the dump is stored, and reuses a snapshot taken in the last hour.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := newClient().CreateSnapshot(cmd.Context(), args[0], snapshotType, snapshotDescription)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out)
		}
		switch {
		case out.Existing:
			fmt.Printf("Reusing snapshot %s (expires %s)\n", out.SnapshotID, formatTime(&out.ExpiresAt))
		case snapshotType == model.SnapshotTypePreOperation:
			fmt.Printf("Snapshot %s completed (expires %s)\n", out.SnapshotID, formatTime(&out.ExpiresAt))
		default:
			fmt.Printf("Snapshot %s started (backup job %s)\n", out.SnapshotID, out.BackupJobID)
		}
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots available for restore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshots, err := newClient().ListSnapshots(cmd.Context(), snapshotTenant)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(snapshots)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTENANT\tTYPE\tDESCRIPTION\tCREATED\tEXPIRES")
		for _, s := range snapshots {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.SnapshotID, s.TenantSchema, s.SnapshotType, orDash(s.OperationDescription),
				formatTime(&s.CreatedAt), formatTime(&s.ExpiresAt))
		}
		return tw.Flush()
	},
}

func init() {
	snapshotCreateCmd.Flags().StringVar(&snapshotType, "type", model.SnapshotTypeManual, "Snapshot type (manual or pre_operation)")
	snapshotCreateCmd.Flags().StringVar(&snapshotDescription, "description", "", "What the snapshot protects against (required)")
	snapshotCreateCmd.MarkFlagRequired("description")
	snapshotListCmd.Flags().StringVar(&snapshotTenant, "tenant", "", "Only list snapshots of this tenant schema")

	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotListCmd)
	rootCmd.AddCommand(snapshotCmd)
}
