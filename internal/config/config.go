package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Export locations
	ExportDir string `mapstructure:"export-dir"`
	CacheDir  string `mapstructure:"cache-dir"`

	// S3 configuration (optional; empty bucket disables uploads)
	S3Bucket   string `mapstructure:"s3-bucket"`
	S3Region   string `mapstructure:"s3-region"`
	S3Endpoint string `mapstructure:"s3-endpoint"`
	S3Prefix   string `mapstructure:"s3-prefix"`

	// Image handling
	ImageMaxDimension int `mapstructure:"image-max-dimension"`

	// Security limits
	MaxImageSize           int64 `mapstructure:"max-image-size"`
	MaxEntryAttachmentSize int64 `mapstructure:"max-entry-attachment-size"`

	// Share cache retention
	CacheMaxAge time.Duration `mapstructure:"cache-max-age"`

	// FSM configuration; retries per state after the first attempt
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	LogLevel string `mapstructure:"log-level"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("sqlite-path", ".artifacts/quickform.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm")
	viper.SetDefault("export-dir", "Downloads")
	viper.SetDefault("cache-dir", ".artifacts/cache")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-endpoint", "")
	viper.SetDefault("s3-prefix", "exports")
	viper.SetDefault("image-max-dimension", 1024)
	viper.SetDefault("max-image-size", 10*1024*1024)
	viper.SetDefault("max-entry-attachment-size", 100*1024*1024)
	viper.SetDefault("cache-max-age", 24*time.Hour)
	viper.SetDefault("fsm-max-retries", 5)
	viper.SetDefault("log-level", "info")

	// Environment variables (will be QUICKFORM_SQLITE_PATH, etc.)
	viper.SetEnvPrefix("QUICKFORM")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.quickform")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.ExportDir == "" {
		return fmt.Errorf("export-dir cannot be empty")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache-dir cannot be empty")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return fmt.Errorf("s3-region cannot be empty when s3-bucket is set")
	}
	if c.ImageMaxDimension <= 0 {
		return fmt.Errorf("image-max-dimension must be positive")
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("max-image-size must be positive")
	}
	if c.MaxEntryAttachmentSize <= 0 {
		return fmt.Errorf("max-entry-attachment-size must be positive")
	}
	if c.CacheMaxAge <= 0 {
		return fmt.Errorf("cache-max-age must be positive")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}

// UploadsEnabled reports whether an S3 bucket is configured
func (c *Config) UploadsEnabled() bool {
	return c.S3Bucket != ""
}
