package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// runs and tests; production uses PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Aggregation fans out group writes; a single connection serializes them
	// instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contractor_records (
	uei               TEXT PRIMARY KEY,
	display_name      TEXT NOT NULL DEFAULT '',
	primary_agency    TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	naics_code        TEXT NOT NULL DEFAULT '',
	naics_description TEXT NOT NULL DEFAULT '',
	industry_cluster  TEXT NOT NULL DEFAULT '',
	lifecycle_stage   TEXT NOT NULL DEFAULT '',
	size_tier         TEXT NOT NULL DEFAULT '',
	total_contracts   INTEGER NOT NULL DEFAULT 0,
	total_obligated   TEXT NOT NULL DEFAULT '0',
	is_active         INTEGER NOT NULL DEFAULT 1,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contractor_profiles (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_name            TEXT NOT NULL UNIQUE,
	display_name              TEXT NOT NULL,
	total_ueis                INTEGER NOT NULL DEFAULT 0,
	total_contracts           INTEGER NOT NULL DEFAULT 0,
	total_obligated           TEXT NOT NULL DEFAULT '0.00',
	avg_contract_value        TEXT NOT NULL DEFAULT '0.00',
	primary_agency            TEXT NOT NULL DEFAULT '',
	total_agencies            INTEGER NOT NULL DEFAULT 0,
	agency_diversity          INTEGER NOT NULL DEFAULT 0,
	headquarters_state        TEXT NOT NULL DEFAULT '',
	total_states              INTEGER NOT NULL DEFAULT 0,
	states_list               TEXT NOT NULL DEFAULT '[]',
	primary_naics_code        TEXT NOT NULL DEFAULT '',
	primary_naics_description TEXT NOT NULL DEFAULT '',
	primary_industry_cluster  TEXT NOT NULL DEFAULT '',
	industry_clusters         TEXT NOT NULL DEFAULT '[]',
	dominant_size_tier        TEXT NOT NULL DEFAULT '',
	dominant_lifecycle_stage  TEXT NOT NULL DEFAULT '',
	performance_score         INTEGER NOT NULL DEFAULT 0,
	risk_score                INTEGER NOT NULL DEFAULT 0,
	growth_trend              TEXT NOT NULL DEFAULT 'stable',
	first_seen_date           DATETIME,
	last_active_date          DATETIME,
	profile_completeness      INTEGER NOT NULL DEFAULT 0,
	is_active                 INTEGER NOT NULL DEFAULT 1,
	created_at                DATETIME NOT NULL,
	updated_at                DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contractor_uei_mappings (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	profile_id             INTEGER NOT NULL REFERENCES contractor_profiles(id),
	uei                    TEXT NOT NULL UNIQUE,
	display_name_at_source TEXT NOT NULL DEFAULT '',
	metrics                TEXT NOT NULL DEFAULT '{}',
	confidence_score       INTEGER NOT NULL CHECK (confidence_score BETWEEN 0 AND 100),
	match_method           TEXT NOT NULL,
	is_active              INTEGER NOT NULL DEFAULT 1,
	created_at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contractor_agency_relationships (
	profile_id            INTEGER NOT NULL REFERENCES contractor_profiles(id),
	agency                TEXT NOT NULL,
	total_contracts       INTEGER NOT NULL DEFAULT 0,
	total_obligated       TEXT NOT NULL DEFAULT '0.00',
	total_ueis            INTEGER NOT NULL DEFAULT 0,
	relationship_strength TEXT NOT NULL,
	is_primary            INTEGER NOT NULL DEFAULT 0,
	updated_at            DATETIME NOT NULL,
	PRIMARY KEY (profile_id, agency)
);

CREATE TABLE IF NOT EXISTS profile_aggregation_runs (
	id                TEXT PRIMARY KEY,
	run_type          TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'running',
	total_profiles    INTEGER NOT NULL DEFAULT 0,
	total_ueis_mapped INTEGER NOT NULL DEFAULT 0,
	groups_failed     INTEGER NOT NULL DEFAULT 0,
	duration_ms       INTEGER NOT NULL DEFAULT 0,
	error             TEXT NOT NULL DEFAULT '',
	errors            TEXT NOT NULL DEFAULT '[]',
	started_at        DATETIME NOT NULL,
	completed_at      DATETIME
);

CREATE TABLE IF NOT EXISTS mapping_stats_snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	total_ueis    INTEGER NOT NULL,
	mapped_ueis   INTEGER NOT NULL,
	unmapped_ueis INTEGER NOT NULL,
	coverage_pct  REAL NOT NULL,
	by_method     TEXT NOT NULL DEFAULT '{}',
	captured_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contractor_records_display_name ON contractor_records(display_name);
CREATE INDEX IF NOT EXISTS idx_contractor_records_updated_at ON contractor_records(updated_at);
CREATE INDEX IF NOT EXISTS idx_uei_mappings_profile_id ON contractor_uei_mappings(profile_id);
CREATE INDEX IF NOT EXISTS idx_aggregation_runs_started_at ON profile_aggregation_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Raw records

func (s *SQLiteStore) ListDisplayNames(ctx context.Context, since *time.Time) ([]string, error) {
	q := `SELECT DISTINCT display_name FROM contractor_records WHERE display_name <> ''`
	var args []any
	if since != nil {
		q += ` AND updated_at > ?`
		args = append(args, since.UTC())
	}
	q += ` ORDER BY display_name`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list display names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan display name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: iterate display names")
}

func (s *SQLiteStore) ListRecordsByDisplayNames(ctx context.Context, names []string) ([]model.RawContractorRecord, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	q := `SELECT ` + recordColumns + ` FROM contractor_records
		WHERE display_name IN (` + placeholders(len(names)) + `) ORDER BY uei`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()
	return collectRecords(rows, "sqlite")
}

func (s *SQLiteStore) ListUnmappedRecords(ctx context.Context, limit int) ([]model.RawContractorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixed("r.", recordColumns)+`
		FROM contractor_records r
		LEFT JOIN contractor_uei_mappings m ON m.uei = r.uei
		WHERE m.uei IS NULL AND r.uei <> '' AND r.display_name <> ''
		ORDER BY r.uei
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unmapped records")
	}
	defer rows.Close()
	return collectRecords(rows, "sqlite")
}

// LoadRecords upserts raw records keyed on UEI. The engine never calls it;
// it seeds local databases.
func (s *SQLiteStore) LoadRecords(ctx context.Context, records []model.RawContractorRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin load records")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contractor_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uei) DO UPDATE SET
			display_name = excluded.display_name,
			primary_agency = excluded.primary_agency,
			state = excluded.state,
			naics_code = excluded.naics_code,
			naics_description = excluded.naics_description,
			industry_cluster = excluded.industry_cluster,
			lifecycle_stage = excluded.lifecycle_stage,
			size_tier = excluded.size_tier,
			total_contracts = excluded.total_contracts,
			total_obligated = excluded.total_obligated,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare load records")
	}
	defer stmt.Close()

	var n int64
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, recordArgs(r)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: load record %s", r.UEI)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit load records")
	}
	return n, nil
}

// Profiles

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *model.ContractorProfile) (int64, error) {
	states, err := json.Marshal(nonNil(p.StatesList))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal states")
	}
	clusters, err := json.Marshal(nonNil(p.IndustryClusters))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal clusters")
	}
	now := time.Now().UTC()

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO contractor_profiles (
			canonical_name, display_name, total_ueis, total_contracts, total_obligated,
			avg_contract_value, primary_agency, total_agencies, agency_diversity,
			headquarters_state, total_states, states_list, primary_naics_code,
			primary_naics_description, primary_industry_cluster, industry_clusters,
			dominant_size_tier, dominant_lifecycle_stage, performance_score, risk_score,
			growth_trend, first_seen_date, last_active_date, profile_completeness,
			is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(canonical_name) DO UPDATE SET
			display_name = excluded.display_name,
			total_ueis = excluded.total_ueis,
			total_contracts = excluded.total_contracts,
			total_obligated = excluded.total_obligated,
			avg_contract_value = excluded.avg_contract_value,
			primary_agency = excluded.primary_agency,
			total_agencies = excluded.total_agencies,
			agency_diversity = excluded.agency_diversity,
			headquarters_state = excluded.headquarters_state,
			total_states = excluded.total_states,
			states_list = excluded.states_list,
			primary_naics_code = excluded.primary_naics_code,
			primary_naics_description = excluded.primary_naics_description,
			primary_industry_cluster = excluded.primary_industry_cluster,
			industry_clusters = excluded.industry_clusters,
			dominant_size_tier = excluded.dominant_size_tier,
			dominant_lifecycle_stage = excluded.dominant_lifecycle_stage,
			performance_score = excluded.performance_score,
			risk_score = excluded.risk_score,
			growth_trend = excluded.growth_trend,
			first_seen_date = excluded.first_seen_date,
			last_active_date = excluded.last_active_date,
			profile_completeness = excluded.profile_completeness,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
		RETURNING id`,
		p.CanonicalName, p.DisplayName, p.TotalUEIs, p.TotalContracts, p.TotalObligated,
		p.AvgContractValue, p.PrimaryAgency, p.TotalAgencies, p.AgencyDiversity,
		p.HeadquartersState, p.TotalStates, string(states), p.PrimaryNAICSCode,
		p.PrimaryNAICSDescription, p.PrimaryIndustryCluster, string(clusters),
		p.DominantSizeTier, p.DominantLifecycleStage, p.PerformanceScore, p.RiskScore,
		string(p.GrowthTrend), p.FirstSeenDate.UTC(), p.LastActiveDate.UTC(), p.ProfileCompleteness,
		p.IsActive, now, now,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert profile %s", p.CanonicalName)
	}
	return id, nil
}

func (s *SQLiteStore) GetProfileByCanonicalName(ctx context.Context, canonical string) (*model.ContractorProfile, error) {
	var (
		p                   model.ContractorProfile
		states, clusters    string
		growth              string
		firstSeen, lastSeen sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, canonical_name, display_name, total_ueis, total_contracts, total_obligated,
			avg_contract_value, primary_agency, total_agencies, agency_diversity,
			headquarters_state, total_states, states_list, primary_naics_code,
			primary_naics_description, primary_industry_cluster, industry_clusters,
			dominant_size_tier, dominant_lifecycle_stage, performance_score, risk_score,
			growth_trend, first_seen_date, last_active_date, profile_completeness,
			is_active, created_at, updated_at
		FROM contractor_profiles WHERE canonical_name = ?`, canonical,
	).Scan(
		&p.ID, &p.CanonicalName, &p.DisplayName, &p.TotalUEIs, &p.TotalContracts, &p.TotalObligated,
		&p.AvgContractValue, &p.PrimaryAgency, &p.TotalAgencies, &p.AgencyDiversity,
		&p.HeadquartersState, &p.TotalStates, &states, &p.PrimaryNAICSCode,
		&p.PrimaryNAICSDescription, &p.PrimaryIndustryCluster, &clusters,
		&p.DominantSizeTier, &p.DominantLifecycleStage, &p.PerformanceScore, &p.RiskScore,
		&growth, &firstSeen, &lastSeen, &p.ProfileCompleteness,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: profile %s", canonical)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get profile")
	}
	if err := json.Unmarshal([]byte(states), &p.StatesList); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal states")
	}
	if err := json.Unmarshal([]byte(clusters), &p.IndustryClusters); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal clusters")
	}
	p.GrowthTrend = model.GrowthTrend(growth)
	p.FirstSeenDate = firstSeen.Time
	p.LastActiveDate = lastSeen.Time
	return &p, nil
}

func (s *SQLiteStore) ListProfileNames(ctx context.Context) ([]model.ProfileName, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canonical_name, display_name FROM contractor_profiles ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profile names")
	}
	defer rows.Close()

	var out []model.ProfileName
	for rows.Next() {
		var p model.ProfileName
		if err := rows.Scan(&p.ID, &p.CanonicalName, &p.DisplayName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile name")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate profile names")
}

// ListMappedProfileNames returns the profiles that own a mapping for any raw
// record updated after since.
func (s *SQLiteStore) ListMappedProfileNames(ctx context.Context, since time.Time) ([]model.ProfileName, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.canonical_name, p.display_name
		FROM contractor_records r
		JOIN contractor_uei_mappings m ON m.uei = r.uei
		JOIN contractor_profiles p ON p.id = m.profile_id
		WHERE r.updated_at > ?
		ORDER BY p.id`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mapped profile names")
	}
	defer rows.Close()

	var out []model.ProfileName
	for rows.Next() {
		var p model.ProfileName
		if err := rows.Scan(&p.ID, &p.CanonicalName, &p.DisplayName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapped profile name")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate mapped profile names")
}

// Mappings

// InsertMappings inserts mappings, skipping UEIs that are already mapped.
// It returns the number of rows actually inserted.
func (s *SQLiteStore) InsertMappings(ctx context.Context, mappings []model.UeiMapping) (int64, error) {
	if len(mappings) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert mappings")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contractor_uei_mappings (
			profile_id, uei, display_name_at_source, metrics, confidence_score,
			match_method, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uei) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert mappings")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var inserted int64
	for _, m := range mappings {
		metrics, err := json.Marshal(m.Metrics)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal metrics %s", m.UEI)
		}
		res, err := stmt.ExecContext(ctx,
			m.ProfileID, m.UEI, m.DisplayNameAtSource, string(metrics), m.Confidence,
			string(m.Method), m.IsActive, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert mapping %s", m.UEI)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert mappings")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListMappings(ctx context.Context, profileID int64) ([]model.UeiMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, uei, display_name_at_source, metrics, confidence_score,
			match_method, is_active, created_at
		FROM contractor_uei_mappings WHERE profile_id = ? ORDER BY uei`, profileID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mappings")
	}
	defer rows.Close()

	var out []model.UeiMapping
	for rows.Next() {
		var (
			m       model.UeiMapping
			metrics string
			method  string
		)
		if err := rows.Scan(&m.ID, &m.ProfileID, &m.UEI, &m.DisplayNameAtSource, &metrics,
			&m.Confidence, &method, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		if err := json.Unmarshal([]byte(metrics), &m.Metrics); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal metrics %s", m.UEI)
		}
		m.Method = model.MatchMethod(method)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate mappings")
}

func (s *SQLiteStore) GetMappingStats(ctx context.Context) (*model.MappingStats, error) {
	stats := &model.MappingStats{ByMethod: make(map[model.MatchMethod]int64)}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contractor_records WHERE uei <> ''`,
	).Scan(&stats.TotalUEIs); err != nil {
		return nil, eris.Wrap(err, "sqlite: count ueis")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contractor_uei_mappings WHERE is_active = 1`,
	).Scan(&stats.MappedUEIs); err != nil {
		return nil, eris.Wrap(err, "sqlite: count mapped ueis")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT match_method, COUNT(*) FROM contractor_uei_mappings
		WHERE is_active = 1 GROUP BY match_method`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by method")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			method string
			n      int64
		)
		if err := rows.Scan(&method, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan method count")
		}
		stats.ByMethod[model.MatchMethod(method)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate method counts")
	}
	stats.ComputeCoverage()
	return stats, nil
}

func (s *SQLiteStore) RecordMappingStats(ctx context.Context, stats *model.MappingStats) error {
	byMethod, err := json.Marshal(stats.ByMethod)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal by_method")
	}
	captured := stats.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mapping_stats_snapshots
			(total_ueis, mapped_ueis, unmapped_ueis, coverage_pct, by_method, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		stats.TotalUEIs, stats.MappedUEIs, stats.UnmappedUEIs, stats.CoveragePct,
		string(byMethod), captured.UTC(),
	)
	return eris.Wrap(err, "sqlite: record mapping stats")
}

// Agency relationships

// ReplaceRelationships makes rels the complete relationship set of the
// profile. Agencies absent from rels are deleted in the same transaction.
func (s *SQLiteStore) ReplaceRelationships(ctx context.Context, profileID int64, rels []model.AgencyRelationship) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace relationships")
	}
	defer tx.Rollback() //nolint:errcheck

	del := `DELETE FROM contractor_agency_relationships WHERE profile_id = ?`
	args := []any{profileID}
	if len(rels) > 0 {
		del += ` AND agency NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(rels)), ",") + `)`
		for _, r := range rels {
			args = append(args, r.Agency)
		}
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return eris.Wrapf(err, "sqlite: delete stale relationships for profile %d", profileID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contractor_agency_relationships (
			profile_id, agency, total_contracts, total_obligated, total_ueis,
			relationship_strength, is_primary, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, agency) DO UPDATE SET
			total_contracts = excluded.total_contracts,
			total_obligated = excluded.total_obligated,
			total_ueis = excluded.total_ueis,
			relationship_strength = excluded.relationship_strength,
			is_primary = excluded.is_primary,
			updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert relationships")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range rels {
		if r.ProfileID != profileID {
			return eris.Errorf("sqlite: relationship %s belongs to profile %d, not %d", r.Agency, r.ProfileID, profileID)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ProfileID, r.Agency, r.TotalContracts, r.TotalObligated, r.TotalUEIs,
			string(r.RelationshipStrength), r.IsPrimary, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert relationship %d/%s", r.ProfileID, r.Agency)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace relationships")
}

func (s *SQLiteStore) ListRelationships(ctx context.Context, profileID int64) ([]model.AgencyRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT profile_id, agency, total_contracts, total_obligated, total_ueis,
			relationship_strength, is_primary
		FROM contractor_agency_relationships WHERE profile_id = ? ORDER BY agency`, profileID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list relationships")
	}
	defer rows.Close()

	var out []model.AgencyRelationship
	for rows.Next() {
		var (
			r        model.AgencyRelationship
			strength string
		)
		if err := rows.Scan(&r.ProfileID, &r.Agency, &r.TotalContracts, &r.TotalObligated,
			&r.TotalUEIs, &strength, &r.IsPrimary); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan relationship")
		}
		r.RelationshipStrength = model.RelationshipStrength(strength)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate relationships")
}

// Runs

func (s *SQLiteStore) StartRun(ctx context.Context, runType model.AggregationRunType) (*model.AggregationRunStats, error) {
	run := newRun(uuid.New().String(), runType, time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_aggregation_runs (id, run_type, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.RunType), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.AggregationRunStats) error {
	return s.finalizeRun(ctx, run, model.AggregationCompleted)
}

func (s *SQLiteStore) FailRun(ctx context.Context, run *model.AggregationRunStats) error {
	return s.finalizeRun(ctx, run, model.AggregationFailed)
}

func (s *SQLiteStore) finalizeRun(ctx context.Context, run *model.AggregationRunStats, status model.AggregationRunStatus) error {
	finishRun(run, status, time.Now().UTC())
	errs, err := json.Marshal(nonNil(run.Errors))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run errors")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE profile_aggregation_runs SET
			status = ?, total_profiles = ?, total_ueis_mapped = ?, groups_failed = ?,
			duration_ms = ?, error = ?, errors = ?, completed_at = ?
		WHERE id = ?`,
		string(run.Status), run.TotalProfiles, run.TotalUEIsMapped, run.GroupsFailed,
		run.DurationMs, run.Error, string(errs), *run.CompletedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.AggregationRunStats, error) {
	var (
		r               model.AggregationRunStats
		runType, status string
		errs            string
		completed       sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_type, status, total_profiles, total_ueis_mapped, groups_failed,
			duration_ms, error, errors, started_at, completed_at
		FROM profile_aggregation_runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&r.ID, &runType, &status, &r.TotalProfiles, &r.TotalUEIsMapped, &r.GroupsFailed,
		&r.DurationMs, &r.Error, &errs, &r.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run errors")
	}
	r.RunType = model.AggregationRunType(runType)
	r.Status = model.AggregationRunStatus(status)
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

// helpers

const recordColumns = `uei, display_name, primary_agency, state, naics_code, naics_description,
	industry_cluster, lifecycle_stage, size_tier, total_contracts, total_obligated,
	is_active, created_at, updated_at`

func recordArgs(r model.RawContractorRecord) []any {
	return []any{
		r.UEI, r.DisplayName, r.PrimaryAgency, r.State, r.NAICSCode, r.NAICSDescription,
		r.IndustryCluster, r.LifecycleStage, r.SizeTier, r.TotalContracts, r.TotalObligated,
		r.IsActive, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	}
}

func prefixed(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func collectRecords(rows interface {
	Next() bool
	Err() error
	scannable
}, backend string) ([]model.RawContractorRecord, error) {
	var out []model.RawContractorRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: scan record", backend)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate records", backend)
}

func scanRecord(row scannable) (model.RawContractorRecord, error) {
	var r model.RawContractorRecord
	err := row.Scan(&r.UEI, &r.DisplayName, &r.PrimaryAgency, &r.State, &r.NAICSCode,
		&r.NAICSDescription, &r.IndustryCluster, &r.LifecycleStage, &r.SizeTier,
		&r.TotalContracts, &r.TotalObligated, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
