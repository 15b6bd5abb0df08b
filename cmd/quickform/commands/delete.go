package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sthao/quickform/pkg/form"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete saved form entries with their photos and sections",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	deleted, err := form.NewSession(repo).Delete(context.Background(), ids)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d of %d entries\n", deleted, len(ids))
	return nil
}
