package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sthao/quickform/pkg/db"
)

var migrateTo uint

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the form database",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().UintVar(&migrateTo, "to", db.LatestVersion, "Target schema version")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if migrateTo == 0 || migrateTo > db.LatestVersion {
		return fmt.Errorf("target version must be between 1 and %d", db.LatestVersion)
	}

	if err := ensureDirectories(cfg.SQLitePath); err != nil {
		return err
	}
	if err := db.MigrateTo(cfg.SQLitePath, migrateTo); err != nil {
		return err
	}

	version, _, err := db.SchemaVersion(cfg.SQLitePath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", version)
	return nil
}
