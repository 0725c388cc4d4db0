package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/aggregate"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/fuzzy"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/monitoring"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/resilience"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/store"
)

// openStore validates the config for mode, opens the configured backend and
// applies pending migrations.
// openStore connects and applies pending migrations. Commands that write
// use it.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	st, err := connectStore(ctx, mode)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// connectStore connects without touching the schema. Read-only commands use
// it and fail on a database that was never migrated.
func connectStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func newGuard() *resilience.Guard {
	return resilience.FromConfig(cfg.Resilience)
}

func newAggregator(st store.Store) *aggregate.Aggregator {
	return aggregate.New(st, aggregate.Config{
		BatchSize:         cfg.Aggregate.BatchSize,
		Concurrency:       cfg.Aggregate.Concurrency,
		GroupBy:           aggregate.GroupBy(cfg.Aggregate.GroupBy),
		IncrementalWindow: time.Duration(cfg.Aggregate.IncrementalWindowHours) * time.Hour,
	}, newGuard())
}

func newMatcher(st store.Store, dryRun bool) *fuzzy.Matcher {
	return fuzzy.New(st, fuzzy.Config{
		InsertBatchSize:     cfg.Fuzzy.InsertBatchSize,
		Workers:             cfg.Fuzzy.Workers,
		MaxBatchesPerSecond: cfg.Fuzzy.MaxBatchesPerSecond,
		DryRun:              dryRun,
	}, newGuard())
}

// pushMetrics ships the process's metrics to the configured Pushgateway.
// Failures are logged; batch commands never fail on telemetry.
func pushMetrics(ctx context.Context) {
	if err := monitoring.Push(context.WithoutCancel(ctx), cfg.Monitoring.PushgatewayURL, cfg.Monitoring.JobName); err != nil {
		zap.L().Warn("metrics push failed", zap.Error(err))
	}
}
