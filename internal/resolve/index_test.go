package resolve

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfiles() []Candidate {
	return []Candidate{
		{ID: 1, Name: "THE BOEING COMPANY"},
		{ID: 2, Name: "LOCKHEED MARTIN CORPORATION"},
		{ID: 3, Name: "NORTHROP GRUMMAN SYSTEMS CORPORATION"},
		{ID: 4, Name: "GENERAL DYNAMICS INFORMATION TECHNOLOGY"},
		{ID: 5, Name: "BOOZ ALLEN HAMILTON INC"},
		{ID: 6, Name: "LEIDOS INC"},
		{ID: 7, Name: "SCIENCE APPLICATIONS INTERNATIONAL CORP"},
		{ID: 8, Name: "BOEING DEFENSE"},
	}
}

func TestTrigramIndex_FindsExact(t *testing.T) {
	idx := NewTrigramIndex(testProfiles(), 0.7)
	got := idx.Candidates("Boeing Co")
	require.NotEmpty(t, got)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestTrigramIndex_SkipsEmptyNames(t *testing.T) {
	idx := NewTrigramIndex([]Candidate{{ID: 1, Name: ""}, {ID: 2, Name: "ACME"}}, 0.5)
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.Candidates(""))
}

// Every name reaching the threshold under a full scan must also be a candidate.
func TestTrigramIndex_NoFalseNegatives(t *testing.T) {
	profiles := testProfiles()
	queries := []string{
		"Boeing Co", "Boing Company", "Lockheed Martin", "Lockhead Martin Corp",
		"Northrop Grumman", "Booz Allen Hamilton Holding", "Leidos", "Liedos",
		"General Dynamics IT", "SAIC", "Boeing Defense Space",
	}
	for _, threshold := range []float64{0.3, 0.5, 0.7, 0.9} {
		idx := NewTrigramIndex(profiles, threshold)
		for _, q := range queries {
			t.Run(fmt.Sprintf("%s@%.1f", q, threshold), func(t *testing.T) {
				got := map[int64]bool{}
				for _, c := range idx.Candidates(q) {
					got[c.ID] = true
				}
				for _, p := range profiles {
					if TrigramSimilarity(q, p.Name) >= threshold {
						assert.True(t, got[p.ID], "missing profile %d (%s)", p.ID, p.Name)
					}
				}
			})
		}
	}
}

func TestTrigramIndex_PrunesUnrelated(t *testing.T) {
	idx := NewTrigramIndex(testProfiles(), 0.8)
	for _, c := range idx.Candidates("Lockheed Martin") {
		assert.NotEqual(t, int64(6), c.ID)
	}
}

func TestScanIndex_ReturnsAll(t *testing.T) {
	idx := NewScanIndex(testProfiles())
	assert.Len(t, idx.Candidates("anything"), 8)
	assert.Equal(t, 8, idx.Len())
}
