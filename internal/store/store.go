// Package store persists contractor profiles, UEI mappings, agency
// relationships and aggregation runs. Raw contractor records are read-only
// input owned by the upstream ETL.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the consolidation engine.
type Store interface {
	// Raw records
	ListDisplayNames(ctx context.Context, since *time.Time) ([]string, error)
	ListRecordsByDisplayNames(ctx context.Context, names []string) ([]model.RawContractorRecord, error)
	ListUnmappedRecords(ctx context.Context, limit int) ([]model.RawContractorRecord, error)
	LoadRecords(ctx context.Context, records []model.RawContractorRecord) (int64, error)

	// Profiles
	UpsertProfile(ctx context.Context, p *model.ContractorProfile) (int64, error)
	GetProfileByCanonicalName(ctx context.Context, canonical string) (*model.ContractorProfile, error)
	ListProfileNames(ctx context.Context) ([]model.ProfileName, error)
	ListMappedProfileNames(ctx context.Context, since time.Time) ([]model.ProfileName, error)

	// Mappings
	InsertMappings(ctx context.Context, mappings []model.UeiMapping) (int64, error)
	ListMappings(ctx context.Context, profileID int64) ([]model.UeiMapping, error)
	GetMappingStats(ctx context.Context) (*model.MappingStats, error)
	RecordMappingStats(ctx context.Context, stats *model.MappingStats) error

	// Agency relationships
	ReplaceRelationships(ctx context.Context, profileID int64, rels []model.AgencyRelationship) error
	ListRelationships(ctx context.Context, profileID int64) ([]model.AgencyRelationship, error)

	// Runs
	StartRun(ctx context.Context, runType model.AggregationRunType) (*model.AggregationRunStats, error)
	CompleteRun(ctx context.Context, run *model.AggregationRunStats) error
	FailRun(ctx context.Context, run *model.AggregationRunStats) error
	LatestRun(ctx context.Context) (*model.AggregationRunStats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// newRun builds the row StartRun inserts.
func newRun(id string, runType model.AggregationRunType, now time.Time) *model.AggregationRunStats {
	return &model.AggregationRunStats{
		ID:        id,
		RunType:   runType,
		Status:    model.AggregationRunning,
		StartedAt: now,
	}
}

// finishRun stamps the terminal status and completion time.
func finishRun(run *model.AggregationRunStats, status model.AggregationRunStatus, now time.Time) {
	run.Status = status
	run.CompletedAt = &now
}
