package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/db"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies the embedded SQL migrations under an advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Raw records

// pgRecordColumns casts total_obligated so NUMERIC and TEXT source columns
// both scan into a string.
const pgRecordColumns = `uei, display_name, primary_agency, state, naics_code, naics_description,
	industry_cluster, lifecycle_stage, size_tier, total_contracts, total_obligated::text,
	is_active, created_at, updated_at`

func (s *PostgresStore) ListDisplayNames(ctx context.Context, since *time.Time) ([]string, error) {
	q := `SELECT DISTINCT display_name FROM contractor_records WHERE display_name <> ''`
	var args []any
	if since != nil {
		q += ` AND updated_at > $1`
		args = append(args, *since)
	}
	q += ` ORDER BY display_name`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list display names")
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: collect display names")
	}
	return names, nil
}

func (s *PostgresStore) ListRecordsByDisplayNames(ctx context.Context, names []string) ([]model.RawContractorRecord, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRecordColumns+` FROM contractor_records
		WHERE display_name = ANY($1) ORDER BY uei`, names)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()
	return collectRecords(rows, "postgres")
}

func (s *PostgresStore) ListUnmappedRecords(ctx context.Context, limit int) ([]model.RawContractorRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prefixed("r.", pgRecordColumns)+`
		FROM contractor_records r
		LEFT JOIN contractor_uei_mappings m ON m.uei = r.uei
		WHERE m.uei IS NULL AND r.uei <> '' AND r.display_name <> ''
		ORDER BY r.uei
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unmapped records")
	}
	defer rows.Close()
	return collectRecords(rows, "postgres")
}

var recordUpsert = db.UpsertConfig{
	Table: "contractor_records",
	Columns: []string{
		"uei", "display_name", "primary_agency", "state", "naics_code", "naics_description",
		"industry_cluster", "lifecycle_stage", "size_tier", "total_contracts", "total_obligated",
		"is_active", "created_at", "updated_at",
	},
	ConflictKeys: []string{"uei"},
	UpdateCols: []string{
		"display_name", "primary_agency", "state", "naics_code", "naics_description",
		"industry_cluster", "lifecycle_stage", "size_tier", "total_contracts", "total_obligated",
		"is_active", "updated_at",
	},
}

// LoadRecords bulk upserts raw records keyed on UEI. The engine never calls
// it; it seeds local databases.
func (s *PostgresStore) LoadRecords(ctx context.Context, records []model.RawContractorRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, recordArgs(r))
	}
	n, err := db.BulkUpsert(ctx, s.pool, recordUpsert, rows)
	return n, eris.Wrap(err, "postgres: load records")
}

// Profiles

var profileColumns = []string{
	"canonical_name", "display_name", "total_ueis", "total_contracts", "total_obligated",
	"avg_contract_value", "primary_agency", "total_agencies", "agency_diversity",
	"headquarters_state", "total_states", "states_list", "primary_naics_code",
	"primary_naics_description", "primary_industry_cluster", "industry_clusters",
	"dominant_size_tier", "dominant_lifecycle_stage", "performance_score", "risk_score",
	"growth_trend", "first_seen_date", "last_active_date", "profile_completeness", "is_active",
}

var upsertProfileSQL = buildUpsertProfileSQL()

func buildUpsertProfileSQL() string {
	ph := make([]string, len(profileColumns))
	set := make([]string, 0, len(profileColumns))
	for i, c := range profileColumns {
		ph[i] = fmt.Sprintf("$%d", i+1)
		if c != "canonical_name" {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	set = append(set, "updated_at = now()")
	return fmt.Sprintf(
		"INSERT INTO contractor_profiles (%s, created_at, updated_at) VALUES (%s, now(), now()) "+
			"ON CONFLICT (canonical_name) DO UPDATE SET %s RETURNING id",
		strings.Join(profileColumns, ", "),
		strings.Join(ph, ", "),
		strings.Join(set, ", "),
	)
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *model.ContractorProfile) (int64, error) {
	total, err := numeric(p.TotalObligated)
	if err != nil {
		return 0, err
	}
	avg, err := numeric(p.AvgContractValue)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx, upsertProfileSQL,
		p.CanonicalName, p.DisplayName, p.TotalUEIs, p.TotalContracts, total,
		avg, p.PrimaryAgency, p.TotalAgencies, p.AgencyDiversity,
		p.HeadquartersState, p.TotalStates, nonNil(p.StatesList), p.PrimaryNAICSCode,
		p.PrimaryNAICSDescription, p.PrimaryIndustryCluster, nonNil(p.IndustryClusters),
		p.DominantSizeTier, p.DominantLifecycleStage, p.PerformanceScore, p.RiskScore,
		string(p.GrowthTrend), p.FirstSeenDate, p.LastActiveDate, p.ProfileCompleteness, p.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert profile %s", p.CanonicalName)
	}
	return id, nil
}

func (s *PostgresStore) GetProfileByCanonicalName(ctx context.Context, canonical string) (*model.ContractorProfile, error) {
	var (
		p                   model.ContractorProfile
		growth              string
		firstSeen, lastSeen *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, canonical_name, display_name, total_ueis, total_contracts, total_obligated::text,
			avg_contract_value::text, primary_agency, total_agencies, agency_diversity,
			headquarters_state, total_states, states_list, primary_naics_code,
			primary_naics_description, primary_industry_cluster, industry_clusters,
			dominant_size_tier, dominant_lifecycle_stage, performance_score, risk_score,
			growth_trend, first_seen_date, last_active_date, profile_completeness,
			is_active, created_at, updated_at
		FROM contractor_profiles WHERE canonical_name = $1`, canonical,
	).Scan(
		&p.ID, &p.CanonicalName, &p.DisplayName, &p.TotalUEIs, &p.TotalContracts, &p.TotalObligated,
		&p.AvgContractValue, &p.PrimaryAgency, &p.TotalAgencies, &p.AgencyDiversity,
		&p.HeadquartersState, &p.TotalStates, &p.StatesList, &p.PrimaryNAICSCode,
		&p.PrimaryNAICSDescription, &p.PrimaryIndustryCluster, &p.IndustryClusters,
		&p.DominantSizeTier, &p.DominantLifecycleStage, &p.PerformanceScore, &p.RiskScore,
		&growth, &firstSeen, &lastSeen, &p.ProfileCompleteness,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: profile %s", canonical)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get profile")
	}
	p.GrowthTrend = model.GrowthTrend(growth)
	if firstSeen != nil {
		p.FirstSeenDate = *firstSeen
	}
	if lastSeen != nil {
		p.LastActiveDate = *lastSeen
	}
	return &p, nil
}

func (s *PostgresStore) ListProfileNames(ctx context.Context) ([]model.ProfileName, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, canonical_name, display_name FROM contractor_profiles ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profile names")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ProfileName, error) {
		var p model.ProfileName
		err := row.Scan(&p.ID, &p.CanonicalName, &p.DisplayName)
		return p, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: collect profile names")
	}
	return out, nil
}

// ListMappedProfileNames returns the profiles that own a mapping for any raw
// record updated after since.
func (s *PostgresStore) ListMappedProfileNames(ctx context.Context, since time.Time) ([]model.ProfileName, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT p.id, p.canonical_name, p.display_name
		FROM contractor_records r
		JOIN contractor_uei_mappings m ON m.uei = r.uei
		JOIN contractor_profiles p ON p.id = m.profile_id
		WHERE r.updated_at > $1
		ORDER BY p.id`, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mapped profile names")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ProfileName, error) {
		var p model.ProfileName
		err := row.Scan(&p.ID, &p.CanonicalName, &p.DisplayName)
		return p, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: collect mapped profile names")
	}
	return out, nil
}

// Mappings

var mappingInsert = db.UpsertConfig{
	Table: "contractor_uei_mappings",
	Columns: []string{
		"profile_id", "uei", "display_name_at_source", "metrics", "confidence_score",
		"match_method", "is_active", "created_at",
	},
	ConflictKeys: []string{"uei"},
	DoNothing:    true,
}

// InsertMappings bulk inserts mappings, skipping UEIs that are already
// mapped. It returns the number of rows actually inserted.
func (s *PostgresStore) InsertMappings(ctx context.Context, mappings []model.UeiMapping) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(mappings))
	for _, m := range mappings {
		metrics, err := json.Marshal(m.Metrics)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal metrics %s", m.UEI)
		}
		rows = append(rows, []any{
			m.ProfileID, m.UEI, m.DisplayNameAtSource, metrics, int32(m.Confidence),
			string(m.Method), m.IsActive, now,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, mappingInsert, rows)
	return n, eris.Wrap(err, "postgres: insert mappings")
}

func (s *PostgresStore) ListMappings(ctx context.Context, profileID int64) ([]model.UeiMapping, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, profile_id, uei, display_name_at_source, metrics, confidence_score,
			match_method, is_active, created_at
		FROM contractor_uei_mappings WHERE profile_id = $1 ORDER BY uei`, profileID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mappings")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.UeiMapping, error) {
		var (
			m       model.UeiMapping
			metrics []byte
			method  string
		)
		if err := row.Scan(&m.ID, &m.ProfileID, &m.UEI, &m.DisplayNameAtSource, &metrics,
			&m.Confidence, &method, &m.IsActive, &m.CreatedAt); err != nil {
			return m, err
		}
		m.Method = model.MatchMethod(method)
		return m, json.Unmarshal(metrics, &m.Metrics)
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: collect mappings")
	}
	return out, nil
}

func (s *PostgresStore) GetMappingStats(ctx context.Context) (*model.MappingStats, error) {
	stats := &model.MappingStats{ByMethod: make(map[model.MatchMethod]int64)}
	if err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM contractor_records WHERE uei <> ''),
			(SELECT COUNT(*) FROM contractor_uei_mappings WHERE is_active)`,
	).Scan(&stats.TotalUEIs, &stats.MappedUEIs); err != nil {
		return nil, eris.Wrap(err, "postgres: count ueis")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT match_method, COUNT(*) FROM contractor_uei_mappings
		WHERE is_active GROUP BY match_method`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by method")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			method string
			n      int64
		)
		if err := rows.Scan(&method, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan method count")
		}
		stats.ByMethod[model.MatchMethod(method)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate method counts")
	}
	stats.ComputeCoverage()
	return stats, nil
}

func (s *PostgresStore) RecordMappingStats(ctx context.Context, stats *model.MappingStats) error {
	byMethod, err := json.Marshal(stats.ByMethod)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal by_method")
	}
	captured := stats.CapturedAt
	if captured.IsZero() {
		captured = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO mapping_stats_snapshots
			(total_ueis, mapped_ueis, unmapped_ueis, coverage_pct, by_method, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		stats.TotalUEIs, stats.MappedUEIs, stats.UnmappedUEIs, stats.CoveragePct, byMethod, captured,
	)
	return eris.Wrap(err, "postgres: record mapping stats")
}

// Agency relationships

var relationshipUpsert = db.UpsertConfig{
	Table: "contractor_agency_relationships",
	Columns: []string{
		"profile_id", "agency", "total_contracts", "total_obligated", "total_ueis",
		"relationship_strength", "is_primary", "updated_at",
	},
	ConflictKeys: []string{"profile_id", "agency"},
}

// ReplaceRelationships makes rels the complete relationship set of the
// profile. Agencies absent from rels are deleted in the same transaction.
func (s *PostgresStore) ReplaceRelationships(ctx context.Context, profileID int64, rels []model.AgencyRelationship) error {
	now := time.Now().UTC()
	agencies := make([]string, 0, len(rels))
	rows := make([][]any, 0, len(rels))
	for _, r := range rels {
		if r.ProfileID != profileID {
			return eris.Errorf("postgres: relationship %s belongs to profile %d, not %d", r.Agency, r.ProfileID, profileID)
		}
		total, err := numeric(r.TotalObligated)
		if err != nil {
			return err
		}
		agencies = append(agencies, r.Agency)
		rows = append(rows, []any{
			r.ProfileID, r.Agency, r.TotalContracts, total, r.TotalUEIs,
			string(r.RelationshipStrength), r.IsPrimary, now,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace relationships")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		DELETE FROM contractor_agency_relationships
		WHERE profile_id = $1 AND agency <> ALL($2)`, profileID, agencies); err != nil {
		return eris.Wrapf(err, "postgres: delete stale relationships for profile %d", profileID)
	}
	if _, err := db.BulkUpsert(ctx, tx, relationshipUpsert, rows); err != nil {
		return eris.Wrap(err, "postgres: upsert relationships")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace relationships")
}

func (s *PostgresStore) ListRelationships(ctx context.Context, profileID int64) ([]model.AgencyRelationship, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT profile_id, agency, total_contracts, total_obligated::text, total_ueis,
			relationship_strength, is_primary
		FROM contractor_agency_relationships WHERE profile_id = $1 ORDER BY agency`, profileID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list relationships")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AgencyRelationship, error) {
		var (
			r        model.AgencyRelationship
			strength string
		)
		err := row.Scan(&r.ProfileID, &r.Agency, &r.TotalContracts, &r.TotalObligated,
			&r.TotalUEIs, &strength, &r.IsPrimary)
		r.RelationshipStrength = model.RelationshipStrength(strength)
		return r, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: collect relationships")
	}
	return out, nil
}

// Runs

func (s *PostgresStore) StartRun(ctx context.Context, runType model.AggregationRunType) (*model.AggregationRunStats, error) {
	run := newRun(uuid.New().String(), runType, time.Now().UTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profile_aggregation_runs (id, run_type, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.RunType), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.AggregationRunStats) error {
	return s.finalizeRun(ctx, run, model.AggregationCompleted)
}

func (s *PostgresStore) FailRun(ctx context.Context, run *model.AggregationRunStats) error {
	return s.finalizeRun(ctx, run, model.AggregationFailed)
}

func (s *PostgresStore) finalizeRun(ctx context.Context, run *model.AggregationRunStats, status model.AggregationRunStatus) error {
	finishRun(run, status, time.Now().UTC())
	errs, err := json.Marshal(nonNil(run.Errors))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run errors")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE profile_aggregation_runs SET
			status = $1, total_profiles = $2, total_ueis_mapped = $3, groups_failed = $4,
			duration_ms = $5, error = $6, errors = $7, completed_at = $8
		WHERE id = $9`,
		string(run.Status), run.TotalProfiles, run.TotalUEIsMapped, run.GroupsFailed,
		run.DurationMs, run.Error, errs, *run.CompletedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.AggregationRunStats, error) {
	var (
		r               model.AggregationRunStats
		runType, status string
		errs            []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, run_type, status, total_profiles, total_ueis_mapped, groups_failed,
			duration_ms, error, errors, started_at, completed_at
		FROM profile_aggregation_runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&r.ID, &runType, &status, &r.TotalProfiles, &r.TotalUEIsMapped, &r.GroupsFailed,
		&r.DurationMs, &r.Error, &errs, &r.StartedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &r.Errors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run errors")
		}
	}
	r.RunType = model.AggregationRunType(runType)
	r.Status = model.AggregationRunStatus(status)
	return &r, nil
}

// numeric converts a decimal string into a NUMERIC parameter. Empty means zero.
func numeric(s string) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if s == "" {
		s = "0"
	}
	if err := n.Scan(s); err != nil {
		return n, eris.Wrapf(err, "postgres: invalid numeric %q", s)
	}
	return n, nil
}
