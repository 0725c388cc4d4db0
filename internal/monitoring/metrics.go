package monitoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"
)

// Metrics definitions
var (
	AggregationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profiles_aggregation_runs_total",
		Help: "Aggregation runs by type and final status.",
	}, []string{"run_type", "status"})

	AggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "profiles_aggregation_duration_seconds",
		Help:    "Wall time of aggregation runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"run_type"})

	AggregationGroupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profiles_aggregation_groups_total",
		Help: "Name groups processed by outcome (succeeded, failed, skipped).",
	}, []string{"outcome"})

	ProfilesUpsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "profiles_upserted_total",
		Help: "Contractor profiles inserted or overwritten.",
	})

	MappingsInsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profiles_mappings_inserted_total",
		Help: "UEI mappings inserted by match method.",
	}, []string{"method"})

	FuzzyCandidatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "profiles_fuzzy_candidates_total",
		Help: "Fuzzy match candidates found above the similarity threshold.",
	})

	FuzzyBatchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "profiles_fuzzy_batch_failures_total",
		Help: "Fuzzy mapping insert batches that failed and were skipped.",
	})

	StoreRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profiles_store_retries_total",
		Help: "Store calls retried after a transient error.",
	}, []string{"component", "operation"})

	StoreBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "profiles_store_breaker_state",
		Help: "Store circuit breaker position (0 closed, 1 open, 2 half-open).",
	})

	MappingCoverage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "profiles_mapping_coverage_percent",
		Help: "Share of raw UEIs with a mapping, as last observed.",
	})
)

// Push sends the default registry to a Pushgateway. Batch commands call it
// once on exit; an empty url is a no-op.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx)
	if err != nil {
		return eris.Wrap(err, "monitoring: push metrics")
	}
	return nil
}
