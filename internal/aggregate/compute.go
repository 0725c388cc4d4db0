package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/resolve"
)

// Relationship strength thresholds on total obligated dollars.
var (
	StrongThreshold   = decimal.New(100, 6) // 100M
	ModerateThreshold = decimal.New(10, 6)  // 10M
)

const completenessPerField = 20

var earlyStageLabels = map[string]bool{
	"emerging":    true,
	"startup":     true,
	"start_up":    true,
	"new_entrant": true,
	"growth":      true,
	"early":       true,
	"early_stage": true,
}

var dormantStageLabels = map[string]bool{
	"dormant":   true,
	"inactive":  true,
	"declining": true,
	"exit":      true,
	"exited":    true,
	"exiting":   true,
}

// ComputeProfile derives a profile from one group's records. It is pure:
// the same records in any order produce the same profile. ID, CreatedAt and
// UpdatedAt are left for the store.
func ComputeProfile(records []model.RawContractorRecord) model.ContractorProfile {
	var (
		ueis, names, agencies, states, naics, clusters, tiers, stages, amounts []string
		contracts                                                              int64
		active                                                                 bool
		firstSeen, lastActive                                                  time.Time
	)
	for _, r := range records {
		ueis = append(ueis, r.UEI)
		names = append(names, strings.TrimSpace(r.DisplayName))
		agencies = append(agencies, strings.TrimSpace(r.PrimaryAgency))
		states = append(states, strings.TrimSpace(r.State))
		naics = append(naics, strings.TrimSpace(r.NAICSCode))
		clusters = append(clusters, strings.TrimSpace(r.IndustryCluster))
		tiers = append(tiers, strings.TrimSpace(r.SizeTier))
		stages = append(stages, strings.TrimSpace(r.LifecycleStage))
		amounts = append(amounts, r.TotalObligated)
		contracts += r.TotalContracts
		active = active || r.IsActive
		if !r.CreatedAt.IsZero() && (firstSeen.IsZero() || r.CreatedAt.Before(firstSeen)) {
			firstSeen = r.CreatedAt
		}
		if r.UpdatedAt.After(lastActive) {
			lastActive = r.UpdatedAt
		}
	}

	total := SumAmounts(amounts)
	displayName := Mode(names)
	distinctAgencies := Distinct(agencies)
	distinctStates := Distinct(states)
	totalUEIs := int64(len(Distinct(ueis)))

	p := model.ContractorProfile{
		CanonicalName:          resolve.NormalizeName(displayName),
		DisplayName:            displayName,
		TotalUEIs:              totalUEIs,
		TotalContracts:         contracts,
		TotalObligated:         FormatAmount(total),
		AvgContractValue:       FormatAmount(AverageAmount(total, contracts)),
		PrimaryAgency:          Mode(agencies),
		TotalAgencies:          len(distinctAgencies),
		AgencyDiversity:        len(distinctAgencies),
		HeadquartersState:      Mode(states),
		TotalStates:            len(distinctStates),
		StatesList:             distinctStates,
		PrimaryNAICSCode:       Mode(naics),
		PrimaryIndustryCluster: Mode(clusters),
		IndustryClusters:       Distinct(clusters),
		DominantSizeTier:       Mode(tiers),
		DominantLifecycleStage: Mode(stages),
		FirstSeenDate:          firstSeen,
		LastActiveDate:         lastActive,
		IsActive:               active,
	}
	p.PrimaryNAICSDescription = naicsDescription(records, p.PrimaryNAICSCode)
	p.PerformanceScore = PerformanceScore(p.AgencyDiversity, p.TotalUEIs)
	p.RiskScore = 100 - p.PerformanceScore
	p.GrowthTrend = GrowthTrendFor(p.DominantLifecycleStage)
	p.ProfileCompleteness = Completeness(p)
	return p
}

// PerformanceScore is min(100, 50 + diversity*5 + ueis*2).
func PerformanceScore(agencyDiversity int, totalUEIs int64) int {
	score := int64(50) + int64(agencyDiversity)*5 + totalUEIs*2
	if score > 100 {
		return 100
	}
	return int(score)
}

// GrowthTrendFor maps a lifecycle stage label to a growth trend.
func GrowthTrendFor(stage string) model.GrowthTrend {
	key := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(stage)))
	switch {
	case earlyStageLabels[key]:
		return model.GrowthIncreasing
	case dormantStageLabels[key]:
		return model.GrowthDeclining
	default:
		return model.GrowthStable
	}
}

// Completeness awards 20 points for each populated key field.
func Completeness(p model.ContractorProfile) int {
	score := 0
	for _, v := range []string{
		p.PrimaryAgency,
		p.HeadquartersState,
		p.PrimaryNAICSCode,
		p.PrimaryIndustryCluster,
		p.DominantSizeTier,
	} {
		if v != "" {
			score += completenessPerField
		}
	}
	if score > 100 {
		return 100
	}
	return score
}

func naicsDescription(records []model.RawContractorRecord, code string) string {
	if code == "" {
		return ""
	}
	var descs []string
	for _, r := range records {
		if strings.TrimSpace(r.NAICSCode) == code {
			descs = append(descs, strings.TrimSpace(r.NAICSDescription))
		}
	}
	return Mode(descs)
}

// StrengthFor classifies an obligated total.
func StrengthFor(obligated decimal.Decimal) model.RelationshipStrength {
	switch {
	case obligated.GreaterThan(StrongThreshold):
		return model.StrengthStrong
	case obligated.GreaterThan(ModerateThreshold):
		return model.StrengthModerate
	default:
		return model.StrengthWeak
	}
}

// BuildRelationships sums records per agency. The highest obligated agency
// is primary; ties go to the smaller agency name. Records without an agency
// are excluded. Output is sorted by agency.
func BuildRelationships(profileID int64, records []model.RawContractorRecord) []model.AgencyRelationship {
	type acc struct {
		contracts int64
		obligated decimal.Decimal
		ueis      map[string]struct{}
	}
	byAgency := make(map[string]*acc)
	for _, r := range records {
		agency := strings.TrimSpace(r.PrimaryAgency)
		if agency == "" {
			continue
		}
		a, ok := byAgency[agency]
		if !ok {
			a = &acc{obligated: decimal.Zero, ueis: make(map[string]struct{})}
			byAgency[agency] = a
		}
		a.contracts += r.TotalContracts
		a.obligated = a.obligated.Add(ParseAmount(r.TotalObligated))
		a.ueis[r.UEI] = struct{}{}
	}

	agencies := make([]string, 0, len(byAgency))
	for agency := range byAgency {
		agencies = append(agencies, agency)
	}
	sort.Strings(agencies)

	rels := make([]model.AgencyRelationship, 0, len(agencies))
	primary := -1
	for i, agency := range agencies {
		a := byAgency[agency]
		rels = append(rels, model.AgencyRelationship{
			ProfileID:            profileID,
			Agency:               agency,
			TotalContracts:       a.contracts,
			TotalObligated:       FormatAmount(a.obligated),
			TotalUEIs:            int64(len(a.ueis)),
			RelationshipStrength: StrengthFor(a.obligated),
		})
		if primary < 0 || a.obligated.GreaterThan(byAgency[agencies[primary]].obligated) {
			primary = i
		}
	}
	if primary >= 0 {
		rels[primary].IsPrimary = true
	}
	return rels
}

// BuildMappings produces one exact mapping per distinct UEI in the group.
func BuildMappings(profileID int64, records []model.RawContractorRecord) []model.UeiMapping {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.UeiMapping, 0, len(records))
	for _, r := range records {
		if r.UEI == "" {
			continue
		}
		if _, ok := seen[r.UEI]; ok {
			continue
		}
		seen[r.UEI] = struct{}{}
		out = append(out, model.UeiMapping{
			ProfileID:           profileID,
			UEI:                 r.UEI,
			DisplayNameAtSource: r.DisplayName,
			Metrics:             MetricsFor(r),
			Confidence:          100,
			Method:              model.MethodExactMatch,
			IsActive:            true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UEI < out[j].UEI })
	return out
}

// MetricsFor snapshots one raw record for storage on its mapping.
func MetricsFor(r model.RawContractorRecord) model.MappingMetrics {
	return model.MappingMetrics{
		TotalContracts: r.TotalContracts,
		TotalObligated: FormatAmount(ParseAmount(r.TotalObligated)),
		PrimaryAgency:  r.PrimaryAgency,
		State:          r.State,
		LifecycleStage: r.LifecycleStage,
	}
}
