package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		SQLitePath:             "q.db",
		FSMDBPath:              "fsm",
		ExportDir:              "Downloads",
		CacheDir:               "cache",
		S3Region:               "us-east-1",
		ImageMaxDimension:      1024,
		MaxImageSize:           1 << 20,
		MaxEntryAttachmentSize: 1 << 24,
		CacheMaxAge:            time.Hour,
		FSMMaxRetries:          3,
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".artifacts/quickform.db", cfg.SQLitePath)
	assert.Equal(t, 1024, cfg.ImageMaxDimension)
	assert.Equal(t, 24*time.Hour, cfg.CacheMaxAge)
	assert.False(t, cfg.UploadsEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("QUICKFORM_EXPORT_DIR", "/data/exports")
	t.Setenv("QUICKFORM_S3_BUCKET", "forms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/exports", cfg.ExportDir)
	assert.True(t, cfg.UploadsEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty sqlite path", func(c *Config) { c.SQLitePath = "" }},
		{"empty fsm path", func(c *Config) { c.FSMDBPath = "" }},
		{"empty export dir", func(c *Config) { c.ExportDir = "" }},
		{"empty cache dir", func(c *Config) { c.CacheDir = "" }},
		{"bucket without region", func(c *Config) { c.S3Bucket = "b"; c.S3Region = "" }},
		{"zero dimension", func(c *Config) { c.ImageMaxDimension = 0 }},
		{"zero image size", func(c *Config) { c.MaxImageSize = 0 }},
		{"negative entry size", func(c *Config) { c.MaxEntryAttachmentSize = -1 }},
		{"zero cache age", func(c *Config) { c.CacheMaxAge = 0 }},
		{"negative retries", func(c *Config) { c.FSMMaxRetries = -1 }},
	}

	require.NoError(t, validConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
