package config

import (
	"os"
	"path/filepath"
	"testing"

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
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Aggregate.BatchSize)
	assert.Equal(t, 16, cfg.Aggregate.Concurrency)
	assert.Equal(t, "canonical", cfg.Aggregate.GroupBy)
	assert.Equal(t, 24, cfg.Aggregate.IncrementalWindowHours)
	assert.InDelta(t, 0.7, cfg.Fuzzy.MinSimilarity, 0.001)
	assert.Equal(t, 75, cfg.Fuzzy.MinConfidence)
	assert.Equal(t, 5000, cfg.Fuzzy.Limit)
	assert.Equal(t, 500, cfg.Fuzzy.InsertBatchSize)
	assert.Equal(t, 8, cfg.Fuzzy.Workers)
	assert.False(t, cfg.Fuzzy.DryRun)
	assert.Equal(t, 3, cfg.Resilience.MaxAttempts)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, "profiles-cli", cfg.Monitoring.JobName)
	assert.InDelta(t, 90.0, cfg.Monitoring.MinCoveragePct, 0.001)
	assert.Equal(t, 36, cfg.Monitoring.MaxRunAgeHours)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "profiles-cli", cfg.Tracing.ServiceName)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: profiles.db
log:
  level: debug
  format: console
aggregate:
  batch_size: 25
  group_by: display_name
fuzzy:
  min_similarity: 0.8
  dry_run: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "profiles.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 25, cfg.Aggregate.BatchSize)
	assert.Equal(t, "display_name", cfg.Aggregate.GroupBy)
	assert.InDelta(t, 0.8, cfg.Fuzzy.MinSimilarity, 0.001)
	assert.True(t, cfg.Fuzzy.DryRun)
	// Defaults still apply for unset values
	assert.Equal(t, 16, cfg.Aggregate.Concurrency)
	assert.Equal(t, 75, cfg.Fuzzy.MinConfidence)
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

	t.Setenv("PROFILES_STORE_DRIVER", "postgres")
	t.Setenv("PROFILES_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PROFILES_FUZZY_MIN_CONFIDENCE", "90")
	t.Setenv("PROFILES_STORE_DATABASE_URL", "postgres://localhost/profiles")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Fuzzy.MinConfidence)
	assert.Equal(t, "postgres://localhost/profiles", cfg.Store.DatabaseURL)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

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
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Aggregate.BatchSize = 100
	cfg.Aggregate.Concurrency = 16
	cfg.Aggregate.GroupBy = "canonical"
	cfg.Aggregate.IncrementalWindowHours = 24
	cfg.Fuzzy.MinSimilarity = 0.7
	cfg.Fuzzy.MinConfidence = 75
	cfg.Fuzzy.Limit = 5000
	cfg.Fuzzy.InsertBatchSize = 500
	cfg.Fuzzy.Workers = 8
	cfg.Monitoring.MinCoveragePct = 90
	cfg.Monitoring.MaxRunAgeHours = 36
	cfg.Monitoring.CheckIntervalSecs = 300
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"aggregate", "fuzzy", "monitor", "migrate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_StoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")

	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "profiles.db"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_AggregateBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Aggregate.BatchSize = 0
	err := cfg.Validate("aggregate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate.batch_size")

	cfg.Aggregate.BatchSize = 100
	cfg.Aggregate.GroupBy = "uei"
	err = cfg.Validate("aggregate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate.group_by")

	cfg.Aggregate.GroupBy = "display_name"
	cfg.Aggregate.Concurrency = 0
	err = cfg.Validate("aggregate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate.concurrency")

	cfg.Aggregate.Concurrency = 4
	assert.NoError(t, cfg.Validate("aggregate"))
}

func TestValidate_FuzzyThresholds(t *testing.T) {
	cfg := validDefaults()

	cfg.Fuzzy.MinSimilarity = 0
	err := cfg.Validate("fuzzy")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy.min_similarity")

	cfg.Fuzzy.MinSimilarity = 1.1
	assert.Error(t, cfg.Validate("fuzzy"))

	cfg.Fuzzy.MinSimilarity = 1
	cfg.Fuzzy.MinConfidence = 101
	err = cfg.Validate("fuzzy")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy.min_confidence")

	cfg.Fuzzy.MinConfidence = 0
	cfg.Fuzzy.MaxBatchesPerSecond = -1
	err = cfg.Validate("fuzzy")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy.max_batches_per_second")

	cfg.Fuzzy.MaxBatchesPerSecond = 2
	assert.NoError(t, cfg.Validate("fuzzy"))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Monitoring.MinCoveragePct = 120
	cfg.Monitoring.CheckIntervalSecs = 0

	err := cfg.Validate("monitor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")
	assert.Contains(t, err.Error(), "monitoring.min_coverage_pct")
	assert.Contains(t, err.Error(), "monitoring.check_interval_secs")
}

func TestValidate_TracingSampleRatio(t *testing.T) {
	cfg := validDefaults()
	cfg.Tracing.Enabled = true
	cfg.Tracing.SampleRatio = 2
	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tracing.sample_ratio")
}
