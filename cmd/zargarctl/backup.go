package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/edvin/zargar/internal/model"
)

var (
	backupName   string
	backupType   string
	backupTenant string
	backupLimit  int
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and cancel backup jobs",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a backup job",
	Long: `Start a backup job. The job runs in the background; use "backup show" to
follow it.

Types: full_system, tenant_only (requires --tenant), configuration, database_only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().CreateBackup(cmd.Context(), backupName, backupType, backupTenant)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(job)
		}
		fmt.Printf("Backup %s started (%s)\n", job.JobID, job.Name)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent backup jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := newClient().ListBackups(cmd.Context(), backupLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(jobs)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTENANT\tSTATUS\tSIZE\tCREATED")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				j.JobID, j.Name, j.BackupType, orDash(j.Schema()), j.Status,
				formatSize(j), formatTime(&j.CreatedAt))
		}
		return tw.Flush()
	},
}

var backupShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a backup job and its log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().GetBackup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(job)
		}
		printBackup(job)
		return nil
	},
}

var backupCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().CancelBackup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(job)
		}
		fmt.Printf("Cancellation requested for backup %s (status: %s)\n", job.JobID, job.Status)
		return nil
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupName, "name", "", "Backup name (default: generated)")
	backupCreateCmd.Flags().StringVar(&backupType, "type", model.BackupTypeFullSystem, "Backup type")
	backupCreateCmd.Flags().StringVar(&backupTenant, "tenant", "", "Tenant schema for tenant_only backups")
	backupListCmd.Flags().IntVar(&backupLimit, "limit", 0, "Maximum number of jobs (default: server default)")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupShowCmd, backupCancelCmd)
	rootCmd.AddCommand(backupCmd)
}

func formatSize(j model.BackupJob) string {
	if j.Status != model.JobStatusCompleted {
		return "-"
	}
	return humanize.Bytes(uint64(max(j.FileSizeBytes, 0)))
}

func printBackup(j *model.BackupJob) {
	fmt.Printf("ID:        %s\n", j.JobID)
	fmt.Printf("Name:      %s\n", j.Name)
	fmt.Printf("Type:      %s\n", j.BackupType)
	fmt.Printf("Tenant:    %s\n", orDash(j.Schema()))
	fmt.Printf("Status:    %s (%d%%)\n", j.Status, j.ProgressPercentage)
	fmt.Printf("Created:   %s by %s\n", formatTime(&j.CreatedAt), j.CreatedBy)
	fmt.Printf("Started:   %s\n", formatTime(j.StartedAt))
	fmt.Printf("Completed: %s\n", formatTime(j.CompletedAt))
	if j.FilePath != "" {
		fmt.Printf("File:      %s (%s)\n", j.FilePath, formatSize(*j))
		fmt.Printf("Backends:  %s\n", strings.Join(j.StorageBackends, ", "))
	}
	if j.ErrorMessage != "" {
		fmt.Printf("Error:     %s\n", j.ErrorMessage)
	}
	printLog(j.LogMessages)
}

func printLog(entries []model.LogEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Println("Log:")
	for _, e := range entries {
		fmt.Printf("  %s [%s] %s\n", formatTime(&e.Timestamp), e.Level, e.Message)
	}
}
