package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
	"github.com/sthao/quickform/pkg/form"
	"github.com/sthao/quickform/pkg/security"
)

var saveID int64

var saveCmd = &cobra.Command{
	Use:   "save <form.yaml>",
	Short: "Save a form entry described in a YAML document",
	Long: `Save a pickup/drop-off or stations form entry.
  --id <n>   Update an existing entry; fields absent from the document keep their saved values`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().Int64Var(&saveID, "id", 0, "Entry id to update")
	saveCmd.Flags().Int64("max-image-size", 10*1024*1024, "Max stored size of one photo in bytes")
	saveCmd.Flags().Int64("max-entry-attachment-size", 100*1024*1024, "Max stored size of all photos of one entry")
	bindFlags(saveCmd, "max-image-size", "max-entry-attachment-size")
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	doc, err := form.LoadDocument(args[0])
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	validator := security.NewValidator(cfg.MaxImageSize, cfg.MaxEntryAttachmentSize)
	session := form.NewSession(repo,
		form.WithImageMaxDimension(cfg.ImageMaxDimension),
		form.WithLimiter(validator),
	)

	if saveID != 0 {
		rec, err := repo.GetRecord(ctx, saveID)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("entry %d", saveID))
		}
		if rec.Entry.FormType != doc.Type {
			return errors.Validation(fmt.Sprintf("entry %d is a %s form, document is %s", saveID, rec.Entry.FormType, doc.Type))
		}
		session.Load(rec)
	}

	if err := doc.Apply(session); err != nil {
		return errors.Wrap(err, "invalid form document")
	}

	var id int64
	if doc.Type == db.FormTypeStations {
		id, err = session.SaveStations(ctx)
	} else {
		id, err = session.SaveTransfer(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d)\n", form.MsgEntrySaved, id)
	return nil
}
