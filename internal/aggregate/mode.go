package aggregate

import "sort"

// Mode returns the most frequent non-empty value. Ties go to the
// lexicographically smallest value so the result never depends on map order.
func Mode(values []string) string {
	ranked := rank(values)
	if len(ranked) == 0 {
		return ""
	}
	return ranked[0].value
}

type valueCount struct {
	value string
	count int
}

// rank orders distinct non-empty values by count desc, then value asc.
func rank(values []string) []valueCount {
	counts := make(map[string]int)
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[v]++
	}

	out := make([]valueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, valueCount{value: v, count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].value < out[j].value
	})
	return out
}

// Distinct returns the sorted set of non-empty values.
func Distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
