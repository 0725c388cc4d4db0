package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/config"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		MinCoveragePct: 90,
		MaxRunAgeHours: 36,
	}
}

func healthySnapshot() *HealthSnapshot {
	return &HealthSnapshot{
		HasRun:          true,
		LastRunID:       "run-1",
		LastRunType:     model.RunTypeIncremental,
		LastRunStatus:   model.AggregationCompleted,
		LastRunAgeHours: 2,
		TotalUEIs:       1000,
		MappedUEIs:      950,
		CoveragePct:     95,
		CollectedAt:     fixedNow,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	assert.Empty(t, a.Evaluate(healthySnapshot()))
}

func TestAlerter_Evaluate_NoRun(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	snap := &HealthSnapshot{CollectedAt: fixedNow}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleRun, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "no aggregation run")
}

func TestAlerter_Evaluate_RunFailed(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	snap := healthySnapshot()
	snap.LastRunStatus = model.AggregationFailed
	snap.LastRunError = "circuit open"
	snap.LastRunAgeHours = 100

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1, "a failed run suppresses the staleness check")
	assert.Equal(t, AlertRunFailed, alerts[0].Type)
	assert.Equal(t, "critical", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "run-1")
	assert.Equal(t, "circuit open", alerts[0].Details["error"])
}

func TestAlerter_Evaluate_StaleRun(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	snap := healthySnapshot()
	snap.LastRunAgeHours = 48

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleRun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "48.0h")
}

func TestAlerter_Evaluate_GroupFailures(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	snap := healthySnapshot()
	snap.LastRunGroupsFailed = 3

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertGroupFailures, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "3 name groups")
}

func TestAlerter_Evaluate_LowCoverage(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	snap := healthySnapshot()
	snap.MappedUEIs = 500
	snap.CoveragePct = 50

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowCoverage, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "50.0%")
	assert.Contains(t, alerts[0].Message, "500/1000")
}

func TestAlerter_Evaluate_EmptyRawTable(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	snap := healthySnapshot()
	snap.TotalUEIs = 0
	snap.MappedUEIs = 0
	snap.CoveragePct = 0

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	snap := healthySnapshot()
	snap.LastRunAgeHours = 72
	snap.LastRunGroupsFailed = 1
	snap.CoveragePct = 10

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertStaleRun])
	assert.True(t, types[AlertGroupFailures])
	assert.True(t, types[AlertLowCoverage])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = ts.URL
	a := NewAlerter(cfg)

	alerts := []Alert{
		{Type: AlertRunFailed, Severity: "critical", Message: "a"},
		{Type: AlertLowCoverage, Severity: "medium", Message: "b"},
	}
	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = ts.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertStaleRun, Message: "x"}})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertStaleRun, Message: "x"}})
	assert.Zero(t, sent)
}
