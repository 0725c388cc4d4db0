package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/config"
)

// Checker runs periodic health checks.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
}

// NewChecker creates a new Checker. A non-positive interval falls back to
// five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
	}
}

// CheckOnce collects a snapshot, evaluates it and dispatches any alerts.
func (c *Checker) CheckOnce(ctx context.Context) (*HealthSnapshot, []Alert, error) {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		return nil, nil, err
	}
	alerts := c.alerter.Evaluate(snap)
	if len(alerts) > 0 {
		c.alerter.SendAlerts(ctx, alerts)
	}
	return snap, alerts, nil
}

// Run checks immediately and then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: checker started", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	snap, alerts, err := c.CheckOnce(ctx)
	if err != nil {
		log.Error("monitoring: health check failed", zap.Error(err))
		return
	}
	log.Info("monitoring: health check complete",
		zap.Bool("has_run", snap.HasRun),
		zap.String("last_run_status", string(snap.LastRunStatus)),
		zap.Float64("coverage_pct", snap.CoveragePct),
		zap.Int("alerts", len(alerts)),
	)
}
