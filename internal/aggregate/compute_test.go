package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

func lockheedRecords() []model.RawContractorRecord {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []model.RawContractorRecord{
		{UEI: "A", DisplayName: "LOCKHEED MARTIN CORPORATION", PrimaryAgency: "DoD", TotalContracts: 10, TotalObligated: "1000000000.00", IsActive: true, CreatedAt: base, UpdatedAt: base.Add(time.Hour)},
		{UEI: "B", DisplayName: "LOCKHEED MARTIN CORPORATION", PrimaryAgency: "DoD", TotalContracts: 20, TotalObligated: "2000000000.00", IsActive: true, CreatedAt: base.Add(-time.Hour), UpdatedAt: base},
		{UEI: "C", DisplayName: "LOCKHEED MARTIN CORPORATION", PrimaryAgency: "NASA", TotalContracts: 5000, TotalObligated: "150000000000.00", CreatedAt: base, UpdatedAt: base.Add(2 * time.Hour)},
	}
}

func TestComputeProfile_Lockheed(t *testing.T) {
	p := ComputeProfile(lockheedRecords())

	assert.Equal(t, "LOCKHEED MARTIN", p.CanonicalName)
	assert.Equal(t, "LOCKHEED MARTIN CORPORATION", p.DisplayName)
	assert.Equal(t, int64(3), p.TotalUEIs)
	assert.Equal(t, int64(5030), p.TotalContracts)
	assert.Equal(t, "153000000000.00", p.TotalObligated)
	assert.Equal(t, "30417495.03", p.AvgContractValue)
	assert.Equal(t, 2, p.AgencyDiversity)
	assert.Equal(t, 2, p.TotalAgencies)
	assert.Equal(t, "DoD", p.PrimaryAgency)
	assert.Equal(t, 66, p.PerformanceScore)
	assert.Equal(t, 34, p.RiskScore)
	assert.Equal(t, model.GrowthStable, p.GrowthTrend)
	assert.Equal(t, 20, p.ProfileCompleteness)
	assert.True(t, p.IsActive)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), p.FirstSeenDate)
	assert.Equal(t, time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC), p.LastActiveDate)
}

func TestComputeProfile_OrderIndependent(t *testing.T) {
	recs := lockheedRecords()
	reversed := []model.RawContractorRecord{recs[2], recs[0], recs[1]}
	assert.Equal(t, ComputeProfile(recs), ComputeProfile(reversed))
}

func TestComputeProfile_DominantValues(t *testing.T) {
	recs := []model.RawContractorRecord{
		{UEI: "1", DisplayName: "Acme Corp.", State: "VA", NAICSCode: "541512", NAICSDescription: "Computer Systems Design", IndustryCluster: "IT", SizeTier: "large", LifecycleStage: "Emerging"},
		{UEI: "2", DisplayName: "ACME CORPORATION", State: "MD", NAICSCode: "541512", NAICSDescription: "Computer Systems Design Services", IndustryCluster: "IT", SizeTier: "small", LifecycleStage: "emerging"},
		{UEI: "3", DisplayName: "Acme Corp.", State: "MD", NAICSCode: "336411", NAICSDescription: "Aircraft", IndustryCluster: "Aero", SizeTier: "large", LifecycleStage: "Emerging"},
	}
	p := ComputeProfile(recs)

	assert.Equal(t, "ACME", p.CanonicalName)
	assert.Equal(t, "Acme Corp.", p.DisplayName)
	assert.Equal(t, "MD", p.HeadquartersState)
	assert.Equal(t, []string{"MD", "VA"}, p.StatesList)
	assert.Equal(t, 2, p.TotalStates)
	assert.Equal(t, "541512", p.PrimaryNAICSCode)
	assert.Equal(t, "Computer Systems Design", p.PrimaryNAICSDescription)
	assert.Equal(t, "IT", p.PrimaryIndustryCluster)
	assert.Equal(t, []string{"Aero", "IT"}, p.IndustryClusters)
	assert.Equal(t, "large", p.DominantSizeTier)
	assert.Equal(t, "Emerging", p.DominantLifecycleStage)
	assert.Equal(t, model.GrowthIncreasing, p.GrowthTrend)
	assert.Equal(t, 80, p.ProfileCompleteness)
	assert.Equal(t, "0.00", p.AvgContractValue)
}

func TestComputeProfile_MalformedAmounts(t *testing.T) {
	p := ComputeProfile([]model.RawContractorRecord{
		{UEI: "1", DisplayName: "X", TotalContracts: 1, TotalObligated: "not-a-number"},
		{UEI: "2", DisplayName: "X", TotalContracts: 1, TotalObligated: "1e30"},
		{UEI: "3", DisplayName: "X", TotalContracts: 2, TotalObligated: "10.005"},
	})
	assert.Equal(t, "1000000000000010.01", p.TotalObligated)
}

func TestPerformanceScore_Capped(t *testing.T) {
	assert.Equal(t, 50, PerformanceScore(0, 0))
	assert.Equal(t, 100, PerformanceScore(10, 1))
	assert.Equal(t, 100, PerformanceScore(3, 1000))
}

func TestGrowthTrendFor(t *testing.T) {
	assert.Equal(t, model.GrowthIncreasing, GrowthTrendFor("Startup"))
	assert.Equal(t, model.GrowthIncreasing, GrowthTrendFor("new-entrant"))
	assert.Equal(t, model.GrowthDeclining, GrowthTrendFor("Dormant"))
	assert.Equal(t, model.GrowthDeclining, GrowthTrendFor(" exit "))
	assert.Equal(t, model.GrowthStable, GrowthTrendFor("mature"))
	assert.Equal(t, model.GrowthStable, GrowthTrendFor(""))
}

func TestStrengthFor(t *testing.T) {
	d := decimal.RequireFromString
	assert.Equal(t, model.StrengthStrong, StrengthFor(d("100000000.01")))
	assert.Equal(t, model.StrengthModerate, StrengthFor(d("100000000.00")))
	assert.Equal(t, model.StrengthModerate, StrengthFor(d("10000000.01")))
	assert.Equal(t, model.StrengthWeak, StrengthFor(d("10000000.00")))
	assert.Equal(t, model.StrengthWeak, StrengthFor(d("-5")))
}

func TestBuildRelationships_Lockheed(t *testing.T) {
	rels := BuildRelationships(7, lockheedRecords())
	require.Len(t, rels, 2)

	assert.Equal(t, "DoD", rels[0].Agency)
	assert.Equal(t, "3000000000.00", rels[0].TotalObligated)
	assert.Equal(t, int64(30), rels[0].TotalContracts)
	assert.Equal(t, int64(2), rels[0].TotalUEIs)
	assert.Equal(t, model.StrengthStrong, rels[0].RelationshipStrength)
	assert.False(t, rels[0].IsPrimary)

	assert.Equal(t, "NASA", rels[1].Agency)
	assert.Equal(t, "150000000000.00", rels[1].TotalObligated)
	assert.True(t, rels[1].IsPrimary)
	assert.Equal(t, int64(7), rels[1].ProfileID)
}

func TestBuildRelationships_SumMatchesRecords(t *testing.T) {
	recs := append(lockheedRecords(), model.RawContractorRecord{UEI: "D", PrimaryAgency: "", TotalObligated: "5.00"})
	rels := BuildRelationships(1, recs)

	total := decimal.Zero
	for _, r := range rels {
		total = total.Add(decimal.RequireFromString(r.TotalObligated))
	}
	assert.Equal(t, "153000000000.00", total.StringFixed(2))
}

func TestBuildRelationships_PrimaryTieBreak(t *testing.T) {
	rels := BuildRelationships(1, []model.RawContractorRecord{
		{UEI: "1", PrimaryAgency: "VA", TotalObligated: "10"},
		{UEI: "2", PrimaryAgency: "GSA", TotalObligated: "10"},
	})
	require.Len(t, rels, 2)
	assert.True(t, rels[0].IsPrimary)
	assert.Equal(t, "GSA", rels[0].Agency)
	assert.False(t, rels[1].IsPrimary)
}

func TestBuildMappings(t *testing.T) {
	recs := append(lockheedRecords(), model.RawContractorRecord{UEI: "A", DisplayName: "dup"}, model.RawContractorRecord{UEI: ""})
	ms := BuildMappings(3, recs)
	require.Len(t, ms, 3)
	for _, m := range ms {
		assert.Equal(t, int64(3), m.ProfileID)
		assert.Equal(t, 100, m.Confidence)
		assert.Equal(t, model.MethodExactMatch, m.Method)
		assert.True(t, m.IsActive)
	}
	assert.Equal(t, "A", ms[0].UEI)
	assert.Equal(t, "1000000000.00", ms[0].Metrics.TotalObligated)
}
