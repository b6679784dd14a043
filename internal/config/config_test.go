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
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Ingest.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Ingest.EnrichTimeout())
	assert.Equal(t, int64(512<<20), cfg.Ingest.MaxFileBytes)
	assert.Equal(t, "key", cfg.Ingest.DedupScope)
	assert.Equal(t, "spycloud", cfg.Ingest.DefaultSource)
	assert.Contains(t, cfg.Ingest.NullTokens, "-")
	assert.Contains(t, cfg.Ingest.NullTokens, "NULL")
	assert.Equal(t, []string{"europa.eu", "jrc.it"}, cfg.Classify.InternalDomains)
	assert.Equal(t, "ecMoniker", cfg.Directory.UserIDAttr)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.InDelta(t, 0.25, cfg.Alert.QuarantineRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: /tmp/leaks.db
log:
  level: debug
  format: console
server:
  port: 9090
  api_keys: [alpha, beta]
ingest:
  concurrency: 4
  dedup_scope: credential
classify:
  internal_domains: [example.org]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/leaks.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Server.APIKeys)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.Equal(t, "credential", cfg.Ingest.DedupScope)
	assert.Equal(t, []string{"example.org"}, cfg.Classify.InternalDomains)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Ingest.EnrichTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CREDLEAK_STORE_DRIVER", "postgres")
	t.Setenv("CREDLEAK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CREDLEAK_SERVER_PORT", "3000")
	t.Setenv("CREDLEAK_INGEST_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Ingest.Concurrency)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
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
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/leaks"
	cfg.Server.Port = 8080
	cfg.Server.APIKeys = []string{"k1"}
	cfg.Ingest.Concurrency = 1
	cfg.Ingest.EnrichTimeoutSecs = 10
	cfg.Ingest.DedupScope = "key"
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"import", "serve", "migrate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_ImportReportsEveryProblem(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Ingest.DedupScope = "fuzzy"
	cfg.Ingest.Concurrency = 0

	err := cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
	assert.Contains(t, err.Error(), `ingest.dedup_scope "fuzzy"`)
	assert.Contains(t, err.Error(), "ingest.concurrency")
}

func TestValidate_ServeNeedsKeysAndPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.APIKeys = nil
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.api_keys")
	assert.Contains(t, err.Error(), "server.port 0")

	// Import does not care about the HTTP surface.
	assert.NoError(t, cfg.Validate("import"))
}
