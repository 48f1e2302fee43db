package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/zargar/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the core database migrations",
	Long: `Apply the embedded migrations that create the tenants, backup_jobs,
tenant_snapshots and restore_jobs tables in CORE_DATABASE_URL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		if err := db.RunMigrations(cfg.CoreDatabaseURL); err != nil {
			return err
		}
		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
