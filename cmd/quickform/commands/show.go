package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
	"github.com/sthao/quickform/pkg/form"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved form entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entry id %q", args[0])
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

	rec, err := repo.GetRecord(context.Background(), id)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("entry %d", id))
	}

	return writeRecord(cmd.OutOrStdout(), rec)
}

// writeRecord prints an entry as aligned field/value rows. Binary data is
// summarized.
func writeRecord(out io.Writer, rec *db.FormRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	e := rec.Entry

	fmt.Fprintf(w, "id\t%d\n", e.ID)
	fmt.Fprintf(w, "title\t%s\n", dash(e.Title))
	fmt.Fprintf(w, "type\t%s\n", e.FormType)
	fmt.Fprintf(w, "created_at\t%s\n", dash(e.CreatedAt))
	fmt.Fprintf(w, "updated_at\t%s\n", dash(e.UpdatedAt))

	if e.FormType == db.FormTypeStations {
		fmt.Fprintln(w, "\nstations\t")
		for _, f := range form.Fields() {
			if v, ok := form.StationsValue(e.Stations, f); ok {
				fmt.Fprintf(w, "  %s\t%s\n", f, dash(v))
			}
		}
		fmt.Fprintf(w, "  images\t%d\n", len(rec.ImagesOf(db.ImageTypeStations, db.NoSection)))
		for _, sec := range rec.Sections {
			fmt.Fprintf(w, "\nitem section %d\t\n", sec.SectionIndex+1)
			fmt.Fprintf(w, "  run_number\t%s\n", dash(sec.SectionRunNumber))
			fmt.Fprintf(w, "  totes\t%s\n", dash(sec.Totes))
			fmt.Fprintf(w, "  add_ons\t%s\n", dash(sec.AddOns))
			fmt.Fprintf(w, "  extra\t%s\n", dash(sec.Extra))
			fmt.Fprintf(w, "  print_name\t%s\n", dash(sec.PrintName))
			fmt.Fprintf(w, "  signature\t%s\n", present(sec.Signature))
			fmt.Fprintf(w, "  images\t%d\n", len(rec.ImagesOf(db.ImageTypeStations, sec.SectionIndex)))
		}
		return w.Flush()
	}

	groups := []struct {
		name      string
		details   db.TransferDetails
		imageType db.ImageType
	}{
		{"pickup", e.Pickup, db.ImageTypePickup},
		{"dropoff", e.Dropoff, db.ImageTypeDropoff},
	}
	for _, g := range groups {
		fmt.Fprintf(w, "\n%s\t\n", g.name)
		for _, f := range form.Fields() {
			fmt.Fprintf(w, "  %s\t%s\n", f, dash(form.TransferValue(g.details, f)))
		}
		fmt.Fprintf(w, "  signature_one\t%s\n", present(g.details.SignatureOne))
		fmt.Fprintf(w, "  signature_two\t%s\n", present(g.details.SignatureTwo))
		fmt.Fprintf(w, "  images\t%d\n", len(rec.ImagesOf(g.imageType, db.NoSection)))
	}
	return w.Flush()
}

func present(data []byte) string {
	if len(data) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d bytes", len(data))
}
