package resolve

import (
	"sort"
	"strings"
	"unicode"
)

// Trigrams returns the sorted set of pg_trgm style trigrams for s: each word
// of letters and digits is lowercased and padded with two leading spaces and
// one trailing space before being cut into three-rune windows.
func Trigrams(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil
	}

	set := make(map[string]struct{})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// TrigramSimilarity is the Jaccard similarity of the trigram sets of a and b,
// matching pg_trgm's similarity(). Names are normalized first so legal
// suffixes and punctuation do not dilute the score. The result is symmetric
// and in [0, 1]; two empty names score 0.
func TrigramSimilarity(a, b string) float64 {
	return jaccard(Trigrams(NormalizeName(a)), Trigrams(NormalizeName(b)))
}

// jaccard computes |a ∩ b| / |a ∪ b| over two sorted, de-duplicated slices.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := overlap(a, b)
	return float64(shared) / float64(len(a)+len(b)-shared)
}

func overlap(a, b []string) int {
	i, j, n := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}
