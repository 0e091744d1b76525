package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.SearXNG.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.SearXNG.Timeout())
	assert.Equal(t, "wikinews.org", cfg.SearXNG.DisallowedDomain)
	assert.Equal(t, 5, cfg.Parse.MinParsed)
	assert.Equal(t, 30, cfg.Parse.MaxAttempts)
	assert.Equal(t, 5, cfg.Parse.BatchSize)
	assert.Equal(t, 10, cfg.Extract.TimeoutSecs)
	assert.Equal(t, "zh-tw", cfg.Extract.MSNLocale)
	assert.Equal(t, 3, cfg.Extract.RetryAttempts)
	assert.Equal(t, 2000, cfg.Extract.RetryBackoffMs)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "search-parser.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.InDelta(t, 2.0, cfg.Server.RequestsPerSec, 0.001)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate("search"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
searxng:
  base_url: http://searxng.internal:8888
store:
  driver: postgres
  database_url: postgres://localhost/articles
parse:
  min_parsed: 3
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://searxng.internal:8888", cfg.SearXNG.BaseURL)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/articles", cfg.Store.DatabaseURL)
	assert.Equal(t, 3, cfg.Parse.MinParsed)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Parse.MaxAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("SEARCHPARSE_STORE_DRIVER", "postgres")
	t.Setenv("SEARCHPARSE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SEARCHPARSE_SEARXNG_BASE_URL", "https://search.example.org")
	t.Setenv("SEARCHPARSE_PARSE_BATCH_SIZE", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://search.example.org", cfg.SearXNG.BaseURL)
	assert.Equal(t, 8, cfg.Parse.BatchSize)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.SearXNG.BaseURL = "http://localhost:8080"
	cfg.Parse.MinParsed = 5
	cfg.Parse.MaxAttempts = 30
	cfg.Parse.BatchSize = 5
	cfg.Extract.TimeoutSecs = 10
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "test.db"
	cfg.Server.Port = 8000
	cfg.Server.RequestsPerSec = 2
	return cfg
}

func TestValidateSearch_BadBaseURL(t *testing.T) {
	for _, bad := range []string{"", "localhost:8080", "/search", "http://"} {
		cfg := validDefaults()
		cfg.SearXNG.BaseURL = bad

		err := cfg.Validate("search")
		require.Error(t, err, bad)
		assert.Contains(t, err.Error(), "searxng.base_url must be an absolute URL")
	}
}

func TestValidateSearch_ParseBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Parse.MinParsed = 0
	cfg.Parse.BatchSize = 51

	err := cfg.Validate("search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse.min_parsed must be >= 1")
	assert.Contains(t, err.Error(), "parse.batch_size must be between 1 and 50")
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver must be "postgres" or "sqlite"`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateStore_IgnoresSearchSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.SearXNG.BaseURL = ""

	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")

	assert.NoError(t, cfg.Validate("search"))
}

func TestValidateServe_RateLimit(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.RequestsPerSec = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.requests_per_sec must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
