package aggregate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/monitoring"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/resilience"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/resolve"
)

var tracer = otel.Tracer("github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/aggregate")

// ErrStoreUnavailable aborts a run when the store breaker opens.
var ErrStoreUnavailable = eris.New("aggregate: store unavailable")

// maxRecordedErrors bounds the error list persisted on a run row.
const maxRecordedErrors = 200

// Store is the persistence surface the aggregator needs.
type Store interface {
	ListDisplayNames(ctx context.Context, since *time.Time) ([]string, error)
	ListRecordsByDisplayNames(ctx context.Context, names []string) ([]model.RawContractorRecord, error)
	ListMappedProfileNames(ctx context.Context, since time.Time) ([]model.ProfileName, error)
	UpsertProfile(ctx context.Context, p *model.ContractorProfile) (int64, error)
	InsertMappings(ctx context.Context, mappings []model.UeiMapping) (int64, error)
	ReplaceRelationships(ctx context.Context, profileID int64, rels []model.AgencyRelationship) error
	StartRun(ctx context.Context, runType model.AggregationRunType) (*model.AggregationRunStats, error)
	CompleteRun(ctx context.Context, run *model.AggregationRunStats) error
	FailRun(ctx context.Context, run *model.AggregationRunStats) error
	LatestRun(ctx context.Context) (*model.AggregationRunStats, error)
}

// GroupBy selects the key raw display names are grouped under.
type GroupBy string

const (
	// GroupByCanonical merges display names sharing a canonical name.
	GroupByCanonical GroupBy = "canonical"
	// GroupByDisplayName treats every raw display name as its own group.
	GroupByDisplayName GroupBy = "display_name"
)

// Config controls batching and grouping.
type Config struct {
	BatchSize         int
	Concurrency       int
	GroupBy           GroupBy
	IncrementalWindow time.Duration
}

// DefaultConfig returns the default aggregation settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:         100,
		Concurrency:       16,
		GroupBy:           GroupByCanonical,
		IncrementalWindow: 24 * time.Hour,
	}
}

// Aggregator builds profiles, mappings and relationships from raw records.
type Aggregator struct {
	store Store
	cfg   Config
	guard *resilience.Guard
	log   *zap.Logger
	now   func() time.Time
}

// New creates an Aggregator. A nil guard gets default retry and breaker settings.
func New(st Store, cfg Config, guard *resilience.Guard) *Aggregator {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 || cfg.Concurrency > cfg.BatchSize {
		cfg.Concurrency = cfg.BatchSize
	}
	if cfg.GroupBy == "" {
		cfg.GroupBy = def.GroupBy
	}
	if cfg.IncrementalWindow <= 0 {
		cfg.IncrementalWindow = def.IncrementalWindow
	}
	if guard == nil {
		guard = resilience.DefaultGuard()
	}
	return &Aggregator{
		store: st,
		cfg:   cfg,
		guard: guard,
		log:   zap.L().With(zap.String("component", "aggregate")),
		now:   time.Now,
	}
}

// Group is one unit of aggregation work: every raw display name sharing a key.
type Group struct {
	Key   string
	Names []string
}

// GroupResult is the outcome of processing one group.
type GroupResult struct {
	Key              string
	ProfileID        int64
	MappingsInserted int64
	Skipped          bool
	Err              error
}

// BuildAllProfiles rebuilds every profile from the full raw record store.
func (a *Aggregator) BuildAllProfiles(ctx context.Context) (*model.AggregationRunStats, error) {
	ctx, span := tracer.Start(ctx, "aggregate.BuildAllProfiles")
	defer span.End()

	return a.run(ctx, model.RunTypeFull, func(ctx context.Context) ([]Group, error) {
		names, err := resilience.RunVal(ctx, a.guard, "aggregate", "list_display_names",
			func(ctx context.Context) ([]string, error) {
				return a.store.ListDisplayNames(ctx, nil)
			})
		if err != nil {
			return nil, eris.Wrap(err, "aggregate: list display names")
		}
		return GroupNames(names, a.cfg.GroupBy), nil
	})
}

// UpdateRecentProfiles rebuilds only the groups with raw records updated
// after since (default: now minus the incremental window). Each touched
// group is recomputed in full, so the result matches a full rebuild of
// those groups. A group is touched when a changed record's display name
// falls in it, or when the record's UEI is mapped to the group's profile;
// the latter catches records renamed out of their old group. A profile
// whose group has no raw records left keeps its last totals until it is
// rebuilt by hand.
func (a *Aggregator) UpdateRecentProfiles(ctx context.Context, since *time.Time) (*model.AggregationRunStats, error) {
	ctx, span := tracer.Start(ctx, "aggregate.UpdateRecentProfiles")
	defer span.End()

	cutoff := a.now().Add(-a.cfg.IncrementalWindow)
	if since != nil {
		cutoff = *since
	}
	span.SetAttributes(attribute.String("since", cutoff.Format(time.RFC3339)))

	return a.run(ctx, model.RunTypeIncremental, func(ctx context.Context) ([]Group, error) {
		changed, err := resilience.RunVal(ctx, a.guard, "aggregate", "list_changed_display_names",
			func(ctx context.Context) ([]string, error) {
				return a.store.ListDisplayNames(ctx, &cutoff)
			})
		if err != nil {
			return nil, eris.Wrap(err, "aggregate: list changed display names")
		}
		owners, err := resilience.RunVal(ctx, a.guard, "aggregate", "list_mapped_profiles",
			func(ctx context.Context) ([]model.ProfileName, error) {
				return a.store.ListMappedProfileNames(ctx, cutoff)
			})
		if err != nil {
			return nil, eris.Wrap(err, "aggregate: list mapped profiles")
		}

		touched := make(map[string]bool, len(changed)+len(owners))
		for _, n := range changed {
			touched[groupKey(n, a.cfg.GroupBy)] = true
		}
		for _, p := range owners {
			touched[profileKey(p, a.cfg.GroupBy)] = true
		}
		delete(touched, "")
		if len(touched) == 0 {
			return nil, nil
		}

		// A changed spelling pulls in every other spelling of the same entity.
		all, err := resilience.RunVal(ctx, a.guard, "aggregate", "list_display_names",
			func(ctx context.Context) ([]string, error) {
				return a.store.ListDisplayNames(ctx, nil)
			})
		if err != nil {
			return nil, eris.Wrap(err, "aggregate: list display names")
		}
		var groups []Group
		for _, g := range GroupNames(all, a.cfg.GroupBy) {
			if touched[g.Key] {
				groups = append(groups, g)
			}
		}
		return groups, nil
	})
}

// GetAggregationStatus returns the most recent run, or nil if none exist.
func (a *Aggregator) GetAggregationStatus(ctx context.Context) (*model.AggregationRunStats, error) {
	run, err := a.store.LatestRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: latest run")
	}
	return run, nil
}

func (a *Aggregator) run(ctx context.Context, runType model.AggregationRunType, plan func(context.Context) ([]Group, error)) (*model.AggregationRunStats, error) {
	start := a.now()
	run, err := a.store.StartRun(ctx, runType)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: start run")
	}
	log := a.log.With(zap.String("run_id", run.ID), zap.String("run_type", string(runType)))
	log.Info("aggregation run started")

	groups, err := plan(ctx)
	if err == nil {
		var report model.BatchReport
		report, err = a.processGroups(ctx, groups, run)
		run.GroupsFailed = int64(report.Failed)
		run.Errors = capErrors(report.ErrorStrings())
	}

	run.DurationMs = a.now().Sub(start).Milliseconds()
	monitoring.AggregationDuration.WithLabelValues(string(runType)).Observe(float64(run.DurationMs) / 1000)

	if err != nil {
		run.Status = model.AggregationFailed
		run.Error = err.Error()
		// Record the failure even when the caller's context is gone.
		if ferr := a.store.FailRun(context.WithoutCancel(ctx), run); ferr != nil {
			log.Error("failed to record run failure", zap.Error(ferr))
		}
		monitoring.AggregationRunsTotal.WithLabelValues(string(runType), string(run.Status)).Inc()
		log.Error("aggregation run failed", zap.Error(err), zap.Int64("duration_ms", run.DurationMs))
		return run, err
	}

	run.Status = model.AggregationCompleted
	if err := a.store.CompleteRun(ctx, run); err != nil {
		err = eris.Wrap(err, "aggregate: complete run")
		run.Status = model.AggregationFailed
		run.Error = err.Error()
		if ferr := a.store.FailRun(context.WithoutCancel(ctx), run); ferr != nil {
			log.Error("failed to record run failure", zap.Error(ferr))
		}
		monitoring.AggregationRunsTotal.WithLabelValues(string(runType), string(run.Status)).Inc()
		log.Error("aggregation run could not be completed", zap.Error(err))
		return run, err
	}
	monitoring.AggregationRunsTotal.WithLabelValues(string(runType), string(run.Status)).Inc()
	log.Info("aggregation run completed",
		zap.Int64("profiles", run.TotalProfiles),
		zap.Int64("mappings", run.TotalUEIsMapped),
		zap.Int64("groups_failed", run.GroupsFailed),
		zap.Int64("duration_ms", run.DurationMs),
	)
	return run, nil
}

// processGroups runs groups in sequential batches of BatchSize, with at most
// Concurrency groups in flight per batch. Group failures are collected; only
// cancellation or an open store breaker stops the run.
func (a *Aggregator) processGroups(ctx context.Context, groups []Group, run *model.AggregationRunStats) (model.BatchReport, error) {
	var report model.BatchReport
	for start := 0; start < len(groups); start += a.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "aggregate: run cancelled")
		}

		end := min(start+a.cfg.BatchSize, len(groups))
		results := a.processBatch(ctx, groups[start:end])
		for _, r := range results {
			switch {
			case r.Err != nil:
				report.Fail(r.Key, r.Err)
				monitoring.AggregationGroupsTotal.WithLabelValues("failed").Inc()
			case r.Skipped:
				monitoring.AggregationGroupsTotal.WithLabelValues("skipped").Inc()
			default:
				report.Succeeded++
				run.TotalProfiles++
				run.TotalUEIsMapped += r.MappingsInserted
				monitoring.AggregationGroupsTotal.WithLabelValues("succeeded").Inc()
			}
		}

		a.log.Debug("aggregation batch done",
			zap.Int("batch_start", start),
			zap.Int("batch_size", end-start),
			zap.Int("failed_so_far", report.Failed),
		)

		if a.guard.Open() {
			return report, ErrStoreUnavailable
		}
	}
	return report, nil
}

func (a *Aggregator) processBatch(ctx context.Context, batch []Group) []GroupResult {
	ctx, span := tracer.Start(ctx, "aggregate.batch")
	span.SetAttributes(attribute.Int("groups", len(batch)))
	defer span.End()

	var (
		mu      sync.Mutex
		results = make([]GroupResult, 0, len(batch))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, grp := range batch {
		g.Go(func() error {
			res := a.ProcessGroup(gctx, grp)
			if res.Err != nil {
				a.log.Warn("group aggregation failed",
					zap.String("group", grp.Key),
					zap.Error(res.Err),
				)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil // one group never cancels its siblings
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results
}

// ProcessGroup loads one group's records and writes its profile, exact
// mappings and agency relationships.
func (a *Aggregator) ProcessGroup(ctx context.Context, grp Group) GroupResult {
	ctx, span := tracer.Start(ctx, "aggregate.group")
	span.SetAttributes(attribute.String("group", grp.Key))
	defer span.End()

	res := GroupResult{Key: grp.Key}
	fail := func(err error) GroupResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, "group failed")
		res.Err = err
		return res
	}

	records, err := resilience.RunVal(ctx, a.guard, "aggregate", "list_records",
		func(ctx context.Context) ([]model.RawContractorRecord, error) {
			return a.store.ListRecordsByDisplayNames(ctx, grp.Names)
		})
	if err != nil {
		return fail(eris.Wrap(err, "aggregate: list records"))
	}
	if len(records) == 0 {
		res.Skipped = true
		return res
	}

	profile := ComputeProfile(records)
	if profile.CanonicalName == "" {
		a.log.Warn("skipping group with empty canonical name", zap.String("group", grp.Key))
		res.Skipped = true
		return res
	}

	id, err := resilience.RunVal(ctx, a.guard, "aggregate", "upsert_profile",
		func(ctx context.Context) (int64, error) {
			return a.store.UpsertProfile(ctx, &profile)
		})
	if err != nil {
		return fail(eris.Wrap(err, "aggregate: upsert profile"))
	}
	res.ProfileID = id
	monitoring.ProfilesUpsertedTotal.Inc()

	mappings := BuildMappings(id, records)
	inserted, err := resilience.RunVal(ctx, a.guard, "aggregate", "insert_mappings",
		func(ctx context.Context) (int64, error) {
			return a.store.InsertMappings(ctx, mappings)
		})
	if err != nil {
		return fail(eris.Wrap(err, "aggregate: insert mappings"))
	}
	res.MappingsInserted = inserted
	monitoring.MappingsInsertedTotal.WithLabelValues(string(model.MethodExactMatch)).Add(float64(inserted))

	rels := BuildRelationships(id, records)
	if err := a.guard.Run(ctx, "aggregate", "replace_relationships", func(ctx context.Context) error {
		return a.store.ReplaceRelationships(ctx, id, rels)
	}); err != nil {
		return fail(eris.Wrap(err, "aggregate: replace relationships"))
	}

	return res
}

// GroupNames buckets display names by key and returns groups sorted by key,
// each with its names sorted. Names with an empty key are dropped.
func GroupNames(names []string, by GroupBy) []Group {
	byKey := make(map[string][]string)
	for _, n := range Distinct(names) {
		k := groupKey(n, by)
		if k == "" {
			continue
		}
		byKey[k] = append(byKey[k], n)
	}
	groups := make([]Group, 0, len(byKey))
	for k, ns := range byKey {
		groups = append(groups, Group{Key: k, Names: ns})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

func groupKey(name string, by GroupBy) string {
	if by == GroupByDisplayName {
		return name
	}
	return resolve.NormalizeName(name)
}

// profileKey is the group key an existing profile was built under.
func profileKey(p model.ProfileName, by GroupBy) string {
	if by == GroupByDisplayName {
		return p.DisplayName
	}
	return p.CanonicalName
}

func capErrors(errs []string) []string {
	if len(errs) <= maxRecordedErrors {
		return errs
	}
	return errs[:maxRecordedErrors]
}
