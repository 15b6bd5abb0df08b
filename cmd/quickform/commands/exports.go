package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sthao/quickform/pkg/errors"
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "List PDFs uploaded to S3",
	RunE:  runExports,
}

func init() {
	rootCmd.AddCommand(exportsCmd)
}

func runExports(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.UploadsEnabled() {
		return fmt.Errorf("s3-bucket is not configured")
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return err
	}

	objects, err := client.ListObjects(ctx, cfg.S3Prefix)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	out := cmd.OutOrStdout()
	if len(objects) == 0 {
		fmt.Fprintln(out, "No exports found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE_KB\tLAST_MODIFIED")
	for _, obj := range objects {
		fmt.Fprintf(w, "%s\t%d\t%s\n", obj.Key, obj.Size/1024, obj.LastModified.Format(time.RFC3339))
	}
	return w.Flush()
}
