package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/config"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

// AlertType classifies an alert.
type AlertType string

const (
	AlertRunFailed     AlertType = "run_failed"
	AlertStaleRun      AlertType = "stale_run"
	AlertGroupFailures AlertType = "group_failures"
	AlertLowCoverage   AlertType = "low_coverage"
)

// Alert represents a triggered alert condition.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates snapshots against thresholds and dispatches alerts.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against configured thresholds.
func (a *Alerter) Evaluate(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	switch {
	case !snap.HasRun:
		alerts = append(alerts, Alert{
			Type:      AlertStaleRun,
			Severity:  "high",
			Message:   "no aggregation run has been recorded",
			Timestamp: now,
		})
	case snap.LastRunStatus == model.AggregationFailed:
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: "critical",
			Message:  fmt.Sprintf("%s aggregation run %s failed", snap.LastRunType, snap.LastRunID),
			Details: map[string]any{
				"run_id": snap.LastRunID,
				"error":  snap.LastRunError,
			},
			Timestamp: now,
		})
	default:
		if a.cfg.MaxRunAgeHours > 0 && snap.LastRunAgeHours > float64(a.cfg.MaxRunAgeHours) {
			alerts = append(alerts, Alert{
				Type:     AlertStaleRun,
				Severity: "high",
				Message: fmt.Sprintf("last aggregation run is %.1fh old (limit %dh)",
					snap.LastRunAgeHours, a.cfg.MaxRunAgeHours),
				Details: map[string]any{
					"run_id":    snap.LastRunID,
					"age_hours": snap.LastRunAgeHours,
				},
				Timestamp: now,
			})
		}
		if snap.LastRunGroupsFailed > 0 {
			alerts = append(alerts, Alert{
				Type:     AlertGroupFailures,
				Severity: "medium",
				Message:  fmt.Sprintf("%d name groups failed in run %s", snap.LastRunGroupsFailed, snap.LastRunID),
				Details: map[string]any{
					"run_id":        snap.LastRunID,
					"groups_failed": snap.LastRunGroupsFailed,
				},
				Timestamp: now,
			})
		}
	}

	// An empty raw table has nothing to cover.
	if snap.TotalUEIs > 0 && snap.CoveragePct < a.cfg.MinCoveragePct {
		alerts = append(alerts, Alert{
			Type:     AlertLowCoverage,
			Severity: "medium",
			Message: fmt.Sprintf("UEI mapping coverage %.1f%% is below %.1f%% (%d/%d mapped)",
				snap.CoveragePct, a.cfg.MinCoveragePct, snap.MappedUEIs, snap.TotalUEIs),
			Details: map[string]any{
				"coverage_pct": snap.CoveragePct,
				"mapped_ueis":  snap.MappedUEIs,
				"total_ueis":   snap.TotalUEIs,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts dispatches alerts to the configured webhook and returns how many
// were delivered. Every alert is logged regardless.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	sent := 0
	for _, alert := range alerts {
		log.Warn("monitoring: alert triggered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message),
		)
		if a.cfg.WebhookURL == "" {
			continue
		}
		if err := a.sendWebhook(ctx, alert); err != nil {
			log.Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: send webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
