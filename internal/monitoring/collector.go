package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

// Source is the read-only slice of the store the collector needs.
type Source interface {
	LatestRun(ctx context.Context) (*model.AggregationRunStats, error)
	GetMappingStats(ctx context.Context) (*model.MappingStats, error)
}

// HealthSnapshot is a point-in-time view of aggregation and mapping health.
type HealthSnapshot struct {
	HasRun              bool                       `json:"has_run" yaml:"has_run"`
	LastRunID           string                     `json:"last_run_id,omitempty" yaml:"last_run_id,omitempty"`
	LastRunType         model.AggregationRunType   `json:"last_run_type,omitempty" yaml:"last_run_type,omitempty"`
	LastRunStatus       model.AggregationRunStatus `json:"last_run_status,omitempty" yaml:"last_run_status,omitempty"`
	LastRunError        string                     `json:"last_run_error,omitempty" yaml:"last_run_error,omitempty"`
	LastRunGroupsFailed int64                      `json:"last_run_groups_failed" yaml:"last_run_groups_failed"`
	LastRunAgeHours     float64                    `json:"last_run_age_hours" yaml:"last_run_age_hours"`

	TotalUEIs   int64   `json:"total_ueis" yaml:"total_ueis"`
	MappedUEIs  int64   `json:"mapped_ueis" yaml:"mapped_ueis"`
	CoveragePct float64 `json:"coverage_pct" yaml:"coverage_pct"`

	CollectedAt time.Time `json:"collected_at" yaml:"collected_at"`
}

// Collector gathers health snapshots from the store.
type Collector struct {
	src Source
	now func() time.Time
}

// NewCollector creates a Collector over the given source.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: time.Now}
}

// Collect builds a snapshot from the latest run and current mapping stats.
// The coverage gauge is refreshed as a side effect.
func (c *Collector) Collect(ctx context.Context) (*HealthSnapshot, error) {
	now := c.now().UTC()
	snap := &HealthSnapshot{CollectedAt: now}

	run, err := c.src.LatestRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest run")
	}
	if run != nil {
		snap.HasRun = true
		snap.LastRunID = run.ID
		snap.LastRunType = run.RunType
		snap.LastRunStatus = run.Status
		snap.LastRunError = run.Error
		snap.LastRunGroupsFailed = run.GroupsFailed
		ref := run.StartedAt
		if run.CompletedAt != nil {
			ref = *run.CompletedAt
		}
		snap.LastRunAgeHours = now.Sub(ref).Hours()
	}

	stats, err := c.src.GetMappingStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: mapping stats")
	}
	stats.ComputeCoverage()
	snap.TotalUEIs = stats.TotalUEIs
	snap.MappedUEIs = stats.MappedUEIs
	snap.CoveragePct = stats.CoveragePct
	MappingCoverage.Set(stats.CoveragePct)

	return snap, nil
}
