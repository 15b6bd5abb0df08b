package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sthao/quickform/pkg/errors"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved form entries",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	items, err := repo.ListItems(context.Background())
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No entries found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tRUN\tFACILITY")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			item.ID, dash(item.Title), item.FormType, dash(item.Run), dash(item.FacilityName))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
