// Package aggregate consolidates raw per-UEI contractor records into
// canonical profiles, exact UEI mappings and agency relationships.
package aggregate

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxRecordAmount caps any single record's obligated contribution so one
// corrupt value cannot blow out an aggregate.
var MaxRecordAmount = decimal.New(1, 15)

var amountCleaner = strings.NewReplacer("$", "", ",", "", " ", "")

// ParseAmount parses a textual obligated amount. Unparsable or empty input
// yields zero; the magnitude is clamped to MaxRecordAmount. Negative values
// (deobligations) are kept.
func ParseAmount(s string) decimal.Decimal {
	s = amountCleaner.Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if d.Abs().GreaterThan(MaxRecordAmount) {
		if d.IsNegative() {
			return MaxRecordAmount.Neg()
		}
		return MaxRecordAmount
	}
	return d
}

// SumAmounts adds ParseAmount of every value.
func SumAmounts(values []string) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(ParseAmount(v))
	}
	return total
}

// FormatAmount renders d with exactly two fraction digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// AverageAmount returns total / count rounded to cents, or zero when count
// is not positive.
func AverageAmount(total decimal.Decimal, count int64) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(count), 2)
}
