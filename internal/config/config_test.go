package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "readlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "./data/readlog.db", cfg.Database.DSN)
	assert.Equal(t, "orphan", cfg.Library.NotePolicy)
	assert.Equal(t, "user", cfg.Library.DefaultUser)
	assert.Equal(t, "openlibrary", cfg.Search.Provider)
	assert.Equal(t, 8*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 20, cfg.Search.Limit)
	assert.Equal(t, time.Hour, cfg.Search.CacheTTL)
	assert.Equal(t, "google", cfg.OCR.Provider)
	assert.Equal(t, 10*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, int64(5<<20), cfg.OCR.MaxImageBytes)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  allowed_origins: ["http://localhost:5173"]
database:
  driver: memory
library:
  note_policy: cascade
search:
  provider: googlebooks
  fallback_provider: openlibrary
  timeout: 3s
ocr:
  provider: anthropic
  model: claude-sonnet-4-5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "cascade", cfg.Library.NotePolicy)
	assert.Equal(t, "googlebooks", cfg.Search.Provider)
	assert.Equal(t, "openlibrary", cfg.Search.FallbackProvider)
	assert.Equal(t, 3*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "anthropic", cfg.OCR.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.OCR.Model)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
`)
	t.Setenv("READLOG_SERVER_ADDR", ":7000")
	t.Setenv("READLOG_LIBRARY_NOTE_POLICY", "restrict")
	t.Setenv("GOOGLE_BOOKS_API_KEY", "books-key")
	t.Setenv("GOOGLE_CLOUD_VISION_API_KEY", "vision-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "restrict", cfg.Library.NotePolicy)
	assert.Equal(t, "books-key", cfg.Search.GoogleAPIKey)
	assert.Equal(t, "vision-key", cfg.OCR.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Mode: "release"},
			Database: DatabaseConfig{Driver: "sqlite3", DSN: "x.db"},
			Library:  LibraryConfig{NotePolicy: "orphan", DefaultUser: "user"},
			Search:   SearchConfig{Provider: "openlibrary"},
			OCR:      OCRConfig{Provider: "google", MaxImageBytes: 1},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"policy", func(c *Config) { c.Library.NotePolicy = "purge" }, "library.note_policy"},
		{"search provider", func(c *Config) { c.Search.Provider = "amazon" }, "search.provider"},
		{"same fallback", func(c *Config) { c.Search.FallbackProvider = "openlibrary" }, "must differ"},
		{"ocr provider", func(c *Config) { c.OCR.Provider = "tesseract" }, "ocr.provider"},
		{"mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}

	memory := valid()
	memory.Database = DatabaseConfig{Driver: "memory"}
	assert.NoError(t, memory.Validate())
}
