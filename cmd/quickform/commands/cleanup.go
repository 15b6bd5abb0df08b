package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/sthao/quickform/pkg/errors"
	"github.com/sthao/quickform/pkg/pdf"
)

var cleanupAll bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove cached share PDFs",
	Long: `Remove PDFs left in the share cache:
  (default)   Remove files older than cache-max-age
  --all       Remove every cached file`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove all cached PDFs")
	cleanupCmd.Flags().Duration("cache-max-age", 24*time.Hour, "Age after which cached PDFs are removed")
	bindFlags(cleanupCmd, "cache-max-age")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	maxAge := cfg.CacheMaxAge
	if cleanupAll {
		maxAge = 0
	}

	dir := filepath.Join(cfg.CacheDir, pdf.SharedDir)
	removed, err := cleanupSharedPDFs(dir, maxAge, time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached PDFs\n", removed)
	return nil
}

// cleanupSharedPDFs removes PDFs in dir modified more than maxAge before now.
// A zero maxAge removes them all. A missing dir is not an error.
func cleanupSharedPDFs(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read cache directory")
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if maxAge > 0 && now.Sub(info.ModTime()) < maxAge {
			continue
		}

		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", entry.Name(), err)
			continue
		}
		removed++
	}

	return removed, nil
}
