package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMode(t *testing.T) {
	assert.Equal(t, "DOD", Mode([]string{"NASA", "DOD", "DOD", ""}))
	assert.Equal(t, "", Mode(nil))
	assert.Equal(t, "", Mode([]string{"", ""}))
}

func TestMode_TieBreaksLexicographically(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.Equal(t, "GSA", Mode([]string{"VA", "GSA", "VA", "GSA", "NASA"}))
	}
}

func TestDistinct(t *testing.T) {
	assert.Equal(t, []string{"CA", "TX", "VA"}, Distinct([]string{"VA", "", "CA", "VA", "TX"}))
	assert.Empty(t, Distinct(nil))
}
