package fuzzy

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	records  []model.RawContractorRecord
	profiles []model.ProfileName
	mappings map[string]model.UeiMapping
	history  []model.MappingStats

	insertCalls int
	failInsert  map[int]bool // 1-based InsertMappings call numbers that fail
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mappings:   make(map[string]model.UeiMapping),
		failInsert: make(map[int]bool),
	}
}

func (f *fakeStore) ListUnmappedRecords(_ context.Context, limit int) ([]model.RawContractorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RawContractorRecord
	for _, r := range f.records {
		if _, ok := f.mappings[r.UEI]; !ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UEI < out[j].UEI })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListProfileNames(_ context.Context) ([]model.ProfileName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ProfileName(nil), f.profiles...), nil
}

func (f *fakeStore) InsertMappings(_ context.Context, mappings []model.UeiMapping) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.failInsert[f.insertCalls] {
		return 0, errors.New("insert batch rejected")
	}
	var n int64
	for _, m := range mappings {
		if _, ok := f.mappings[m.UEI]; ok {
			continue
		}
		f.mappings[m.UEI] = m
		n++
	}
	return n, nil
}

func (f *fakeStore) GetMappingStats(_ context.Context) (*model.MappingStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &model.MappingStats{ByMethod: map[model.MatchMethod]int64{}}
	seen := map[string]bool{}
	for _, r := range f.records {
		if seen[r.UEI] {
			continue
		}
		seen[r.UEI] = true
		stats.TotalUEIs++
		if m, ok := f.mappings[r.UEI]; ok {
			stats.MappedUEIs++
			stats.ByMethod[m.Method]++
		}
	}
	return stats, nil
}

func (f *fakeStore) RecordMappingStats(_ context.Context, stats *model.MappingStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, *stats)
	return nil
}
