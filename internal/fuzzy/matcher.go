// Package fuzzy recovers UEIs that exact aggregation left unmapped by
// scoring their raw names against existing profile names.
package fuzzy

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/aggregate"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/monitoring"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/resilience"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/resolve"
)

var tracer = otel.Tracer("github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/fuzzy")

// Store is the persistence surface the matcher needs.
type Store interface {
	ListUnmappedRecords(ctx context.Context, limit int) ([]model.RawContractorRecord, error)
	ListProfileNames(ctx context.Context) ([]model.ProfileName, error)
	InsertMappings(ctx context.Context, mappings []model.UeiMapping) (int64, error)
	GetMappingStats(ctx context.Context) (*model.MappingStats, error)
	RecordMappingStats(ctx context.Context, stats *model.MappingStats) error
}

// Scorer returns a similarity in [0, 1] between two names. It must be
// symmetric and must not increase as the names diverge.
type Scorer func(a, b string) float64

// Config controls batching, parallelism and throttling.
type Config struct {
	InsertBatchSize     int
	Workers             int
	MaxBatchesPerSecond float64
	DryRun              bool
}

// DefaultConfig returns the default matcher settings.
func DefaultConfig() Config {
	return Config{
		InsertBatchSize: 500,
		Workers:         8,
	}
}

// Option customizes a Matcher.
type Option func(*Matcher)

// WithScorer replaces the trigram scorer. The trigram prefix filter is only
// sound for trigram similarity, so a custom scorer is checked against every
// profile.
func WithScorer(s Scorer) Option {
	return func(m *Matcher) {
		m.score = s
		m.newIndex = func(names []resolve.Candidate, _ float64) resolve.CandidateIndex {
			return resolve.NewScanIndex(names)
		}
	}
}

// Match is the best profile found for one unmapped UEI.
type Match struct {
	UEI         string                    `json:"uei" yaml:"uei"`
	RawName     string                    `json:"raw_name" yaml:"raw_name"`
	ProfileID   int64                     `json:"profile_id" yaml:"profile_id"`
	ProfileName string                    `json:"profile_name" yaml:"profile_name"`
	Similarity  float64                   `json:"similarity" yaml:"similarity"`
	Record      model.RawContractorRecord `json:"-" yaml:"-"`
}

// Confidence is round(similarity*100) clamped to [0, 100].
func (m Match) Confidence() int {
	c := int(math.Round(m.Similarity * 100))
	return max(0, min(100, c))
}

// ApplyResult summarizes one ApplyFuzzyMatches call.
type ApplyResult struct {
	Considered int               `json:"considered" yaml:"considered"`
	Eligible   int               `json:"eligible" yaml:"eligible"`
	Inserted   int64             `json:"inserted" yaml:"inserted"`
	Batches    int               `json:"batches" yaml:"batches"`
	Report     model.BatchReport `json:"report" yaml:"report"`
}

// ProcessResult summarizes a full find-then-apply pass.
type ProcessResult struct {
	Before         model.MappingStats `json:"before" yaml:"before"`
	After          model.MappingStats `json:"after" yaml:"after"`
	Candidates     int                `json:"candidates" yaml:"candidates"`
	MeanConfidence float64            `json:"mean_confidence" yaml:"mean_confidence"`
	Applied        ApplyResult        `json:"applied" yaml:"applied"`
	DryRun         bool               `json:"dry_run" yaml:"dry_run"`
	DurationMs     int64              `json:"duration_ms" yaml:"duration_ms"`
}

// Matcher finds and applies fuzzy UEI mappings.
type Matcher struct {
	store    Store
	cfg      Config
	guard    *resilience.Guard
	score    Scorer
	newIndex func([]resolve.Candidate, float64) resolve.CandidateIndex
	log      *zap.Logger
	now      func() time.Time
}

// New creates a Matcher. A nil guard gets default retry and breaker settings.
func New(st Store, cfg Config, guard *resilience.Guard, opts ...Option) *Matcher {
	def := DefaultConfig()
	if cfg.InsertBatchSize <= 0 {
		cfg.InsertBatchSize = def.InsertBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if guard == nil {
		guard = resilience.DefaultGuard()
	}
	m := &Matcher{
		store: st,
		cfg:   cfg,
		guard: guard,
		score: resolve.TrigramSimilarity,
		newIndex: func(names []resolve.Candidate, threshold float64) resolve.CandidateIndex {
			return resolve.NewTrigramIndex(names, threshold)
		},
		log: zap.L().With(zap.String("component", "fuzzy")),
		now: time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// FindFuzzyMatches scores up to limit unmapped UEIs against every profile
// name and keeps, per UEI, the single best profile scoring at least
// minSimilarity. Equal scores go to the lowest profile ID.
func (m *Matcher) FindFuzzyMatches(ctx context.Context, minSimilarity float64, limit int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "fuzzy.FindFuzzyMatches")
	defer span.End()

	if minSimilarity <= 0 || minSimilarity > 1 {
		return nil, eris.Errorf("fuzzy: min similarity %.3f outside (0, 1]", minSimilarity)
	}
	if limit <= 0 {
		return nil, eris.Errorf("fuzzy: limit must be positive, got %d", limit)
	}

	unmapped, err := resilience.RunVal(ctx, m.guard, "fuzzy", "list_unmapped",
		func(ctx context.Context) ([]model.RawContractorRecord, error) {
			return m.store.ListUnmappedRecords(ctx, limit)
		})
	if err != nil {
		return nil, eris.Wrap(err, "fuzzy: list unmapped records")
	}
	profiles, err := resilience.RunVal(ctx, m.guard, "fuzzy", "list_profiles",
		func(ctx context.Context) ([]model.ProfileName, error) {
			return m.store.ListProfileNames(ctx)
		})
	if err != nil {
		return nil, eris.Wrap(err, "fuzzy: list profile names")
	}
	span.SetAttributes(attribute.Int("unmapped", len(unmapped)), attribute.Int("profiles", len(profiles)))
	if len(unmapped) == 0 || len(profiles) == 0 {
		return nil, nil
	}

	names := make([]resolve.Candidate, len(profiles))
	for i, p := range profiles {
		names[i] = resolve.Candidate{ID: p.ID, Name: p.DisplayName}
	}
	idx := m.newIndex(names, minSimilarity)

	best := make([]*Match, len(unmapped))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, rec := range unmapped {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			best[i] = m.bestMatch(rec, idx.Candidates(rec.DisplayName), minSimilarity)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "fuzzy: score candidates")
	}

	var matches []Match
	for _, b := range best {
		if b != nil {
			matches = append(matches, *b)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].UEI < matches[j].UEI })

	monitoring.FuzzyCandidatesTotal.Add(float64(len(matches)))
	m.log.Info("fuzzy candidates found",
		zap.Int("unmapped", len(unmapped)),
		zap.Int("profiles", len(profiles)),
		zap.Int("matches", len(matches)),
		zap.Float64("min_similarity", minSimilarity),
	)
	return matches, nil
}

func (m *Matcher) bestMatch(rec model.RawContractorRecord, cands []resolve.Candidate, minSimilarity float64) *Match {
	var best *Match
	for _, c := range cands {
		s := m.score(rec.DisplayName, c.Name)
		if s < minSimilarity {
			continue
		}
		if best == nil || s > best.Similarity || (s == best.Similarity && c.ID < best.ProfileID) {
			best = &Match{
				UEI:         rec.UEI,
				RawName:     rec.DisplayName,
				ProfileID:   c.ID,
				ProfileName: c.Name,
				Similarity:  s,
				Record:      rec,
			}
		}
	}
	return best
}

// ApplyFuzzyMatches inserts a fuzzy_trigram mapping for every match whose
// confidence reaches minConfidence. Inserts run in fixed-size batches and
// skip UEIs that already have any mapping. A failed batch is logged and
// skipped; later batches still run.
func (m *Matcher) ApplyFuzzyMatches(ctx context.Context, matches []Match, minConfidence int) (*ApplyResult, error) {
	ctx, span := tracer.Start(ctx, "fuzzy.ApplyFuzzyMatches")
	defer span.End()

	res := &ApplyResult{Considered: len(matches)}
	seen := make(map[string]struct{}, len(matches))
	var eligible []model.UeiMapping
	for _, mt := range matches {
		conf := mt.Confidence()
		if conf < minConfidence {
			continue
		}
		if _, ok := seen[mt.UEI]; ok {
			continue
		}
		seen[mt.UEI] = struct{}{}
		metrics := aggregate.MetricsFor(mt.Record)
		metrics.MatchSimilarity = mt.Similarity
		eligible = append(eligible, model.UeiMapping{
			ProfileID:           mt.ProfileID,
			UEI:                 mt.UEI,
			DisplayNameAtSource: mt.RawName,
			Metrics:             metrics,
			Confidence:          conf,
			Method:              model.MethodFuzzyTrigram,
			IsActive:            true,
		})
	}
	res.Eligible = len(eligible)
	if m.cfg.DryRun || len(eligible) == 0 {
		return res, nil
	}

	var limiter *rate.Limiter
	if m.cfg.MaxBatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.cfg.MaxBatchesPerSecond), 1)
	}

	for start := 0; start < len(eligible); start += m.cfg.InsertBatchSize {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return res, eris.Wrap(err, "fuzzy: wait for batch slot")
			}
		} else if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "fuzzy: apply cancelled")
		}

		end := min(start+m.cfg.InsertBatchSize, len(eligible))
		batch := eligible[start:end]
		res.Batches++

		n, err := resilience.RunVal(ctx, m.guard, "fuzzy", "insert_mappings",
			func(ctx context.Context) (int64, error) {
				return m.store.InsertMappings(ctx, batch)
			})
		if err != nil {
			m.log.Warn("fuzzy mapping batch failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			res.Report.Fail(batch[0].UEI+".."+batch[len(batch)-1].UEI, err)
			monitoring.FuzzyBatchFailuresTotal.Inc()
			continue
		}
		res.Report.Succeeded++
		res.Inserted += n
	}

	monitoring.MappingsInsertedTotal.WithLabelValues(string(model.MethodFuzzyTrigram)).Add(float64(res.Inserted))
	m.log.Info("fuzzy mappings applied",
		zap.Int("eligible", res.Eligible),
		zap.Int64("inserted", res.Inserted),
		zap.Int("batches_failed", res.Report.Failed),
		zap.Int("min_confidence", minConfidence),
	)
	return res, nil
}

// RunFuzzyMatchingProcess runs find then apply and reports coverage before
// and after, plus the mean confidence of every candidate found (not only
// those applied). The after snapshot is appended to the stats history.
func (m *Matcher) RunFuzzyMatchingProcess(ctx context.Context, minSimilarity float64, minConfidence, limit int) (*ProcessResult, error) {
	ctx, span := tracer.Start(ctx, "fuzzy.RunFuzzyMatchingProcess")
	defer span.End()

	start := m.now()
	before, err := m.GetMappingStats(ctx)
	if err != nil {
		return nil, err
	}

	matches, err := m.FindFuzzyMatches(ctx, minSimilarity, limit)
	if err != nil {
		return nil, err
	}

	res := &ProcessResult{
		Before:     *before,
		Candidates: len(matches),
		DryRun:     m.cfg.DryRun,
	}
	if len(matches) > 0 {
		var sum int
		for _, mt := range matches {
			sum += mt.Confidence()
		}
		res.MeanConfidence = float64(sum) / float64(len(matches))
	}

	applied, err := m.ApplyFuzzyMatches(ctx, matches, minConfidence)
	if err != nil {
		return nil, err
	}
	res.Applied = *applied

	after, err := m.GetMappingStats(ctx)
	if err != nil {
		return nil, err
	}
	res.After = *after
	res.DurationMs = m.now().Sub(start).Milliseconds()

	if !m.cfg.DryRun {
		if err := m.guard.Run(ctx, "fuzzy", "record_stats", func(ctx context.Context) error {
			return m.store.RecordMappingStats(ctx, after)
		}); err != nil {
			m.log.Warn("failed to record mapping stats", zap.Error(err))
		}
	}

	m.log.Info("fuzzy matching complete",
		zap.Float64("coverage_before", res.Before.CoveragePct),
		zap.Float64("coverage_after", res.After.CoveragePct),
		zap.Int("candidates", res.Candidates),
		zap.Float64("mean_confidence", res.MeanConfidence),
		zap.Int64("inserted", res.Applied.Inserted),
		zap.Bool("dry_run", res.DryRun),
	)
	return res, nil
}

// GetMappingStats returns UEI coverage across the raw record store.
func (m *Matcher) GetMappingStats(ctx context.Context) (*model.MappingStats, error) {
	stats, err := resilience.RunVal(ctx, m.guard, "fuzzy", "mapping_stats",
		func(ctx context.Context) (*model.MappingStats, error) {
			return m.store.GetMappingStats(ctx)
		})
	if err != nil {
		return nil, eris.Wrap(err, "fuzzy: mapping stats")
	}
	stats.ComputeCoverage()
	if stats.CapturedAt.IsZero() {
		stats.CapturedAt = m.now().UTC()
	}
	monitoring.MappingCoverage.Set(stats.CoveragePct)
	return stats, nil
}
