package resolve

import (
	"math"
	"sort"
)

// Candidate is one indexed name that may satisfy a similarity threshold.
type Candidate struct {
	ID   int64
	Name string
}

// CandidateIndex narrows the set of names a query must be scored against.
type CandidateIndex interface {
	Candidates(name string) []Candidate
	Len() int
}

type indexEntry struct {
	Candidate
	grams []string
}

// TrigramIndex is a blocking structure for trigram Jaccard search. It keeps
// an inverted index over the prefix of each name's trigram set, ordered
// rarest first. Any pair with Jaccard >= threshold shares at least one
// trigram within both prefixes, so probing only the query's prefix finds
// every qualifying name without a full cross product.
type TrigramIndex struct {
	threshold float64
	entries   []indexEntry
	freq      map[string]int
	postings  map[string][]int
}

// NewTrigramIndex indexes names for queries at the given similarity
// threshold, which must be in (0, 1].
func NewTrigramIndex(names []Candidate, threshold float64) *TrigramIndex {
	if threshold <= 0 || threshold > 1 {
		threshold = 1
	}
	idx := &TrigramIndex{
		threshold: threshold,
		entries:   make([]indexEntry, 0, len(names)),
		freq:      make(map[string]int),
		postings:  make(map[string][]int),
	}

	for _, c := range names {
		grams := Trigrams(NormalizeName(c.Name))
		if len(grams) == 0 {
			continue
		}
		idx.entries = append(idx.entries, indexEntry{Candidate: c, grams: grams})
		for _, g := range grams {
			idx.freq[g]++
		}
	}

	for i, e := range idx.entries {
		for _, g := range idx.prefix(e.grams) {
			idx.postings[g] = append(idx.postings[g], i)
		}
	}
	return idx
}

// Len returns the number of indexed names.
func (idx *TrigramIndex) Len() int {
	return len(idx.entries)
}

// Candidates returns every indexed name that could reach the threshold
// against name, in index order. Callers still score each candidate.
func (idx *TrigramIndex) Candidates(name string) []Candidate {
	grams := Trigrams(NormalizeName(name))
	if len(grams) == 0 {
		return nil
	}

	minLen := ceilEps(idx.threshold * float64(len(grams)))
	maxLen := int(math.Floor(float64(len(grams))/idx.threshold + eps))

	seen := make(map[int]struct{})
	var hits []int
	for _, g := range idx.prefix(grams) {
		for _, i := range idx.postings[g] {
			if _, ok := seen[i]; ok {
				continue
			}
			seen[i] = struct{}{}
			n := len(idx.entries[i].grams)
			if n < minLen || n > maxLen {
				continue
			}
			hits = append(hits, i)
		}
	}
	sort.Ints(hits)

	out := make([]Candidate, len(hits))
	for k, i := range hits {
		out[k] = idx.entries[i].Candidate
	}
	return out
}

// prefix orders grams by ascending document frequency (unknown trigrams
// first, ties by value) and returns the first |g| - ceil(t*|g|) + 1.
func (idx *TrigramIndex) prefix(grams []string) []string {
	ordered := make([]string, len(grams))
	copy(ordered, grams)
	sort.Slice(ordered, func(i, j int) bool {
		fi, fj := idx.freq[ordered[i]], idx.freq[ordered[j]]
		if fi != fj {
			return fi < fj
		}
		return ordered[i] < ordered[j]
	})

	n := len(ordered) - ceilEps(idx.threshold*float64(len(ordered))) + 1
	if n > len(ordered) {
		n = len(ordered)
	}
	if n < 1 {
		n = 1
	}
	return ordered[:n]
}

// eps absorbs float error such as 0.7*10 == 7.000000000000001, which would
// otherwise shorten a prefix and drop a qualifying pair.
const eps = 1e-9

func ceilEps(x float64) int {
	return int(math.Ceil(x - eps))
}

// ScanIndex returns every name for every query. It is the fallback for
// scorers the trigram prefix filter is not sound for.
type ScanIndex struct {
	names []Candidate
}

// NewScanIndex wraps names without any blocking.
func NewScanIndex(names []Candidate) *ScanIndex {
	return &ScanIndex{names: names}
}

// Candidates returns all names.
func (s *ScanIndex) Candidates(string) []Candidate {
	return s.names
}

// Len returns the number of names.
func (s *ScanIndex) Len() int {
	return len(s.names)
}
