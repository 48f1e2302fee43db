package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/zargar/internal/client"
)

var (
	apiURL     string
	actor      string
	timeout    time.Duration
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "zargarctl",
	Short: "Operate zargar backups, tenant snapshots and restores",
	Long: `zargarctl drives the zargar admin API.

Examples:
  # Take a full backup and follow it
  zargarctl backup create --type full_system --name nightly
  zargarctl backup show <job-id>

  # Snapshot a tenant before a risky change, then roll back if needed
  zargarctl snapshot create acme --type pre_operation --description "price import"
  zargarctl restore snapshot <snapshot-id>

  # Restore a tenant from a main backup
  zargarctl restore tenant acme --backup <job-id> --confirm acme.zargar.shop`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultActor := os.Getenv("ZARGAR_ACTOR")
	if defaultActor == "" {
		defaultActor = os.Getenv("USER")
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("ZARGAR_API_URL", "http://localhost:8090"), "Admin API base URL")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor, "Operator name recorded on jobs")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 35*time.Minute, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")
}

func newClient() *client.Client {
	return client.NewClient(apiURL, actor, timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
