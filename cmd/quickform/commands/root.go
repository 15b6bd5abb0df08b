package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sthao/quickform/internal/config"
	"github.com/sthao/quickform/pkg/errors"
)

// LogLevel is the level of the default logger, set from --log-level
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "quickform",
	Short: "QuickForm - logistics confirmation forms",
	Long:  `Records pickup, drop-off and stations confirmation forms in SQLite and exports them as PDF.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setLogLevel(viper.GetString("log-level"))
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("sqlite-path", ".artifacts/quickform.db", "SQLite database path")
	flags.String("fsm-db-path", ".artifacts/fsm", "FSM BoltDB directory")
	flags.String("export-dir", "Downloads", "Directory for saved PDF exports")
	flags.String("cache-dir", ".artifacts/cache", "Cache directory for shared PDFs")
	flags.String("s3-bucket", "", "S3 bucket for uploaded exports (empty disables uploads)")
	flags.String("s3-region", "us-east-1", "S3 region")
	flags.String("s3-endpoint", "", "Custom S3-compatible endpoint")
	flags.String("s3-prefix", "exports", "Object key prefix for uploaded exports")
	flags.Int("image-max-dimension", 1024, "Max requested photo dimension before downsampling")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	for _, name := range []string{
		"sqlite-path", "fsm-db-path", "export-dir", "cache-dir",
		"s3-bucket", "s3-region", "s3-endpoint", "s3-prefix",
		"image-max-dimension", "log-level",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

// bindFlags binds command-local flags to the config keys of the same name
func bindFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
}

func setLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug":
		LogLevel.Set(slog.LevelDebug)
	case "", "info":
		LogLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		LogLevel.Set(slog.LevelWarn)
	case "error":
		LogLevel.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// loadConfig loads and validates the configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}
