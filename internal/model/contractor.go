package model

import "time"

// RawContractorRecord is one per-UEI row produced by the upstream ETL.
// The engine never writes these.
type RawContractorRecord struct {
	UEI              string    `json:"uei" yaml:"uei"`
	DisplayName      string    `json:"display_name" yaml:"display_name"`
	PrimaryAgency    string    `json:"primary_agency,omitempty" yaml:"primary_agency,omitempty"`
	State            string    `json:"state,omitempty" yaml:"state,omitempty"`
	NAICSCode        string    `json:"naics_code,omitempty" yaml:"naics_code,omitempty"`
	NAICSDescription string    `json:"naics_description,omitempty" yaml:"naics_description,omitempty"`
	IndustryCluster  string    `json:"industry_cluster,omitempty" yaml:"industry_cluster,omitempty"`
	LifecycleStage   string    `json:"lifecycle_stage,omitempty" yaml:"lifecycle_stage,omitempty"`
	SizeTier         string    `json:"size_tier,omitempty" yaml:"size_tier,omitempty"`
	TotalContracts   int64     `json:"total_contracts" yaml:"total_contracts"`
	TotalObligated   string    `json:"total_obligated" yaml:"total_obligated"` // textual decimal, may be malformed
	IsActive         bool      `json:"is_active" yaml:"is_active"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"updated_at"`
}

// GrowthTrend is the coarse direction derived from the dominant lifecycle stage.
type GrowthTrend string

const (
	GrowthIncreasing GrowthTrend = "increasing"
	GrowthStable     GrowthTrend = "stable"
	GrowthDeclining  GrowthTrend = "declining"
)

// ContractorProfile is the consolidated view of one contractor across UEIs.
// Money fields are fixed-point decimal strings with two fraction digits.
type ContractorProfile struct {
	ID            int64  `json:"id" yaml:"id"`
	CanonicalName string `json:"canonical_name" yaml:"canonical_name"`
	DisplayName   string `json:"display_name" yaml:"display_name"`

	TotalUEIs        int64  `json:"total_ueis" yaml:"total_ueis"`
	TotalContracts   int64  `json:"total_contracts" yaml:"total_contracts"`
	TotalObligated   string `json:"total_obligated" yaml:"total_obligated"`
	AvgContractValue string `json:"avg_contract_value" yaml:"avg_contract_value"`

	PrimaryAgency   string `json:"primary_agency" yaml:"primary_agency"`
	TotalAgencies   int    `json:"total_agencies" yaml:"total_agencies"`
	AgencyDiversity int    `json:"agency_diversity" yaml:"agency_diversity"`

	HeadquartersState string   `json:"headquarters_state" yaml:"headquarters_state"`
	TotalStates       int      `json:"total_states" yaml:"total_states"`
	StatesList        []string `json:"states_list" yaml:"states_list"`

	PrimaryNAICSCode        string   `json:"primary_naics_code" yaml:"primary_naics_code"`
	PrimaryNAICSDescription string   `json:"primary_naics_description" yaml:"primary_naics_description"`
	PrimaryIndustryCluster  string   `json:"primary_industry_cluster" yaml:"primary_industry_cluster"`
	IndustryClusters        []string `json:"industry_clusters" yaml:"industry_clusters"`

	DominantSizeTier       string `json:"dominant_size_tier" yaml:"dominant_size_tier"`
	DominantLifecycleStage string `json:"dominant_lifecycle_stage" yaml:"dominant_lifecycle_stage"`

	PerformanceScore int         `json:"performance_score" yaml:"performance_score"`
	RiskScore        int         `json:"risk_score" yaml:"risk_score"`
	GrowthTrend      GrowthTrend `json:"growth_trend" yaml:"growth_trend"`

	FirstSeenDate       time.Time `json:"first_seen_date" yaml:"first_seen_date"`
	LastActiveDate      time.Time `json:"last_active_date" yaml:"last_active_date"`
	ProfileCompleteness int       `json:"profile_completeness" yaml:"profile_completeness"`
	IsActive            bool      `json:"is_active" yaml:"is_active"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// ProfileName is the projection the fuzzy matcher indexes.
type ProfileName struct {
	ID            int64  `json:"id"`
	CanonicalName string `json:"canonical_name"`
	DisplayName   string `json:"display_name"`
}
