package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Aggregate  AggregateConfig  `yaml:"aggregate" mapstructure:"aggregate"`
	Fuzzy      FuzzyConfig      `yaml:"fuzzy" mapstructure:"fuzzy"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Tracing    TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AggregateConfig configures profile aggregation runs.
type AggregateConfig struct {
	BatchSize              int    `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency            int    `yaml:"concurrency" mapstructure:"concurrency"`
	GroupBy                string `yaml:"group_by" mapstructure:"group_by"`
	IncrementalWindowHours int    `yaml:"incremental_window_hours" mapstructure:"incremental_window_hours"`
}

// FuzzyConfig configures fuzzy UEI matching.
type FuzzyConfig struct {
	MinSimilarity       float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
	MinConfidence       int     `yaml:"min_confidence" mapstructure:"min_confidence"`
	Limit               int     `yaml:"limit" mapstructure:"limit"`
	InsertBatchSize     int     `yaml:"insert_batch_size" mapstructure:"insert_batch_size"`
	Workers             int     `yaml:"workers" mapstructure:"workers"`
	MaxBatchesPerSecond float64 `yaml:"max_batches_per_second" mapstructure:"max_batches_per_second"`
	DryRun              bool    `yaml:"dry_run" mapstructure:"dry_run"`
}

// ResilienceConfig configures retries and the store circuit breaker.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures metrics push and health alerting.
type MonitoringConfig struct {
	PushgatewayURL    string  `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	JobName           string  `yaml:"job_name" mapstructure:"job_name"`
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinCoveragePct    float64 `yaml:"min_coverage_pct" mapstructure:"min_coverage_pct"`
	MaxRunAgeHours    int     `yaml:"max_run_age_hours" mapstructure:"max_run_age_hours"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure    bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROFILES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("aggregate.batch_size", 100)
	v.SetDefault("aggregate.concurrency", 16)
	v.SetDefault("aggregate.group_by", "canonical")
	v.SetDefault("aggregate.incremental_window_hours", 24)
	v.SetDefault("fuzzy.min_similarity", 0.7)
	v.SetDefault("fuzzy.min_confidence", 75)
	v.SetDefault("fuzzy.limit", 5000)
	v.SetDefault("fuzzy.insert_batch_size", 500)
	v.SetDefault("fuzzy.workers", 8)
	v.SetDefault("fuzzy.max_batches_per_second", 0)
	v.SetDefault("fuzzy.dry_run", false)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 200)
	v.SetDefault("resilience.max_backoff_ms", 5000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("monitoring.pushgateway_url", "")
	v.SetDefault("monitoring.job_name", "profiles-cli")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.min_coverage_pct", 90.0)
	v.SetDefault("monitoring.max_run_age_hours", 36)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "profiles-cli")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes:
// "aggregate", "fuzzy", "monitor" and "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required (sqlite file path)")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	switch mode {
	case "aggregate":
		if c.Aggregate.BatchSize < 1 || c.Aggregate.BatchSize > 10000 {
			errs = append(errs, "aggregate.batch_size must be between 1 and 10000")
		}
		if c.Aggregate.Concurrency < 1 || c.Aggregate.Concurrency > 256 {
			errs = append(errs, "aggregate.concurrency must be between 1 and 256")
		}
		if c.Aggregate.GroupBy != "canonical" && c.Aggregate.GroupBy != "display_name" {
			errs = append(errs, "aggregate.group_by must be canonical or display_name")
		}
		if c.Aggregate.IncrementalWindowHours < 1 {
			errs = append(errs, "aggregate.incremental_window_hours must be >= 1")
		}
	case "fuzzy":
		if c.Fuzzy.MinSimilarity <= 0 || c.Fuzzy.MinSimilarity > 1 {
			errs = append(errs, "fuzzy.min_similarity must be in (0, 1]")
		}
		if c.Fuzzy.MinConfidence < 0 || c.Fuzzy.MinConfidence > 100 {
			errs = append(errs, "fuzzy.min_confidence must be between 0 and 100")
		}
		if c.Fuzzy.Limit < 1 {
			errs = append(errs, "fuzzy.limit must be >= 1")
		}
		if c.Fuzzy.InsertBatchSize < 1 {
			errs = append(errs, "fuzzy.insert_batch_size must be >= 1")
		}
		if c.Fuzzy.Workers < 1 || c.Fuzzy.Workers > 256 {
			errs = append(errs, "fuzzy.workers must be between 1 and 256")
		}
		if c.Fuzzy.MaxBatchesPerSecond < 0 {
			errs = append(errs, "fuzzy.max_batches_per_second must be >= 0")
		}
	case "monitor":
		if c.Monitoring.MinCoveragePct < 0 || c.Monitoring.MinCoveragePct > 100 {
			errs = append(errs, "monitoring.min_coverage_pct must be between 0 and 100")
		}
		if c.Monitoring.MaxRunAgeHours < 1 {
			errs = append(errs, "monitoring.max_run_age_hours must be >= 1")
		}
		if c.Monitoring.CheckIntervalSecs < 1 {
			errs = append(errs, "monitoring.check_interval_secs must be >= 1")
		}
	case "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1) {
		errs = append(errs, "tracing.sample_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
