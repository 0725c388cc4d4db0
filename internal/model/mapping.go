package model

import "time"

// MatchMethod records how a UEI was attached to a profile.
type MatchMethod string

const (
	MethodExactMatch   MatchMethod = "exact_match"
	MethodFuzzyTrigram MatchMethod = "fuzzy_trigram"
)

// UeiMapping attaches one UEI to exactly one profile. Mappings are written
// once and never reassigned.
type UeiMapping struct {
	ID                  int64          `json:"id" yaml:"id"`
	ProfileID           int64          `json:"profile_id" yaml:"profile_id"`
	UEI                 string         `json:"uei" yaml:"uei"`
	DisplayNameAtSource string         `json:"display_name_at_source" yaml:"display_name_at_source"`
	Metrics             MappingMetrics `json:"metrics" yaml:"metrics"`
	Confidence          int            `json:"confidence" yaml:"confidence"`
	Method              MatchMethod    `json:"method" yaml:"method"`
	IsActive            bool           `json:"is_active" yaml:"is_active"`
	CreatedAt           time.Time      `json:"created_at" yaml:"created_at"`
}

// MappingMetrics is the per-UEI snapshot stored alongside a mapping.
type MappingMetrics struct {
	TotalContracts  int64   `json:"total_contracts" yaml:"total_contracts"`
	TotalObligated  string  `json:"total_obligated" yaml:"total_obligated"`
	PrimaryAgency   string  `json:"primary_agency,omitempty" yaml:"primary_agency,omitempty"`
	State           string  `json:"state,omitempty" yaml:"state,omitempty"`
	LifecycleStage  string  `json:"lifecycle_stage,omitempty" yaml:"lifecycle_stage,omitempty"`
	MatchSimilarity float64 `json:"match_similarity,omitempty" yaml:"match_similarity,omitempty"`
}

// RelationshipStrength buckets the obligated total between a profile and an agency.
type RelationshipStrength string

const (
	StrengthWeak     RelationshipStrength = "weak"
	StrengthModerate RelationshipStrength = "moderate"
	StrengthStrong   RelationshipStrength = "strong"
)

// AgencyRelationship summarizes a profile's business with one agency.
type AgencyRelationship struct {
	ProfileID            int64                `json:"profile_id" yaml:"profile_id"`
	Agency               string               `json:"agency" yaml:"agency"`
	TotalContracts       int64                `json:"total_contracts" yaml:"total_contracts"`
	TotalObligated       string               `json:"total_obligated" yaml:"total_obligated"`
	TotalUEIs            int64                `json:"total_ueis" yaml:"total_ueis"`
	RelationshipStrength RelationshipStrength `json:"relationship_strength" yaml:"relationship_strength"`
	IsPrimary            bool                 `json:"is_primary" yaml:"is_primary"`
}

// MappingStats describes how much of the raw UEI population is mapped.
type MappingStats struct {
	TotalUEIs    int64                 `json:"total_ueis" yaml:"total_ueis"`
	MappedUEIs   int64                 `json:"mapped_ueis" yaml:"mapped_ueis"`
	UnmappedUEIs int64                 `json:"unmapped_ueis" yaml:"unmapped_ueis"`
	CoveragePct  float64               `json:"coverage_pct" yaml:"coverage_pct"`
	ByMethod     map[MatchMethod]int64 `json:"by_method" yaml:"by_method"`
	CapturedAt   time.Time             `json:"captured_at" yaml:"captured_at"`
}

// ComputeCoverage fills UnmappedUEIs and CoveragePct from the totals.
func (s *MappingStats) ComputeCoverage() {
	s.UnmappedUEIs = s.TotalUEIs - s.MappedUEIs
	if s.UnmappedUEIs < 0 {
		s.UnmappedUEIs = 0
	}
	if s.TotalUEIs == 0 {
		s.CoveragePct = 0
		return
	}
	s.CoveragePct = float64(s.MappedUEIs) / float64(s.TotalUEIs) * 100
}
