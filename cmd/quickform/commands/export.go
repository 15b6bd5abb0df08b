package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/sthao/quickform/internal/config"
	"github.com/sthao/quickform/pkg/errors"
	"github.com/sthao/quickform/pkg/form"
	appfsm "github.com/sthao/quickform/pkg/fsm"
	"github.com/sthao/quickform/pkg/pdf"
	"github.com/sthao/quickform/pkg/security"
	"github.com/sthao/quickform/pkg/storage"
	"github.com/superfly/fsm"
)

var (
	exportShare  bool
	exportUpload bool
)

var exportCmd = &cobra.Command{
	Use:   "export <id>...",
	Short: "Export form entries into one PDF",
	Long: `Export the selected entries into a single PDF document.
  --share    Write into the share cache instead of the export directory
  --upload   Upload the PDF to the configured S3 bucket`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportShare, "share", false, "Write into the share cache")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Upload the PDF to S3")
	exportCmd.Flags().Int("fsm-max-retries", 5, "Max retries per export state after the first attempt")
	bindFlags(exportCmd, "fsm-max-retries")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if exportUpload && !cfg.UploadsEnabled() {
		return fmt.Errorf("--upload requires s3-bucket to be configured")
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.ExportDir, cfg.CacheDir); err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	existing, err := repo.ExistingIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "entry lookup failed")
	}
	if len(existing) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), form.MsgNoEntriesSelected)
		return nil
	}

	objects, err := objectStore(ctx, cfg)
	if err != nil {
		return err
	}

	validator := security.NewValidator(cfg.MaxImageSize, cfg.MaxEntryAttachmentSize)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(repo, pdf.NewExporter(), objects, validator,
		cfg.ExportDir, cfg.CacheDir, cfg.S3Prefix, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	mode := appfsm.ModeSave
	if exportShare {
		mode = appfsm.ModeShare
	}
	req := &appfsm.ExportRequest{
		IDs:         existing,
		Mode:        mode,
		Upload:      exportUpload,
		RequestedAt: time.Now().Unix(),
	}
	resp := &appfsm.ExportResponse{}

	runID := uuid.NewString()
	version, err := start(ctx, runID, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "run_id", runID, "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		if errors.Is(err, errors.ErrNoEntries) {
			fmt.Fprintln(cmd.OutOrStdout(), form.MsgNoEntriesSelected)
			return nil
		}
		return errors.Wrap(err, "FSM execution failed")
	}

	path := resp.PDFPath
	if path == "" {
		dir, prefix := machine.OutputLocation(mode)
		path = filepath.Join(dir, pdf.FileName(prefix, time.Unix(req.RequestedAt, 0)))
	}

	slog.Info("export completed", "run_id", runID, "status", resp.Status, "path", path, "pages", resp.Pages, "s3_key", resp.S3Key)

	fmt.Fprintln(cmd.OutOrStdout(), path)
	if resp.S3Key != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", cfg.S3Bucket, resp.S3Key)
	}
	return nil
}

// objectStore returns the S3 client when a bucket is configured. The result
// is a nil interface otherwise.
func objectStore(ctx context.Context, cfg *config.Config) (appfsm.ObjectStore, error) {
	if !cfg.UploadsEnabled() {
		return nil, nil
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newS3Client(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}
	return client, nil
}
