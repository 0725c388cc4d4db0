package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

// fakeStore is an in-memory Store for aggregator tests.
type fakeStore struct {
	mu sync.Mutex

	records  []model.RawContractorRecord
	profiles map[string]*model.ContractorProfile // by canonical name
	mappings map[string]model.UeiMapping         // by UEI
	rels     map[string]model.AgencyRelationship // by profile id + agency
	runs     []model.AggregationRunStats
	nextID   int64

	listErr     error
	recordsErr  error
	completeErr error
	upsertErr   map[string]error // by canonical name
}

func newFakeStore(records ...model.RawContractorRecord) *fakeStore {
	return &fakeStore{
		records:   records,
		profiles:  make(map[string]*model.ContractorProfile),
		mappings:  make(map[string]model.UeiMapping),
		rels:      make(map[string]model.AgencyRelationship),
		upsertErr: make(map[string]error),
	}
}

func (f *fakeStore) ListDisplayNames(_ context.Context, since *time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range f.records {
		if since != nil && !r.UpdatedAt.After(*since) {
			continue
		}
		if !seen[r.DisplayName] {
			seen[r.DisplayName] = true
			out = append(out, r.DisplayName)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) ListRecordsByDisplayNames(_ context.Context, names []string) ([]model.RawContractorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []model.RawContractorRecord
	for _, r := range f.records {
		if want[r.DisplayName] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UEI < out[j].UEI })
	return out, nil
}

func (f *fakeStore) UpsertProfile(_ context.Context, p *model.ContractorProfile) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.upsertErr[p.CanonicalName]; err != nil {
		return 0, err
	}
	cp := *p
	if existing, ok := f.profiles[p.CanonicalName]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	} else {
		f.nextID++
		cp.ID = f.nextID
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	f.profiles[p.CanonicalName] = &cp
	return cp.ID, nil
}

func (f *fakeStore) InsertMappings(_ context.Context, mappings []model.UeiMapping) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func (f *fakeStore) ReplaceRelationships(_ context.Context, profileID int64, rels []model.AgencyRelationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, r := range f.rels {
		if r.ProfileID == profileID {
			delete(f.rels, k)
		}
	}
	for _, r := range rels {
		f.rels[fmt.Sprintf("%d|%s", r.ProfileID, r.Agency)] = r
	}
	return nil
}

func (f *fakeStore) ListMappedProfileNames(_ context.Context, since time.Time) ([]model.ProfileName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID := make(map[int64]*model.ContractorProfile, len(f.profiles))
	for _, p := range f.profiles {
		byID[p.ID] = p
	}
	seen := map[int64]bool{}
	var out []model.ProfileName
	for _, r := range f.records {
		if !r.UpdatedAt.After(since) {
			continue
		}
		m, ok := f.mappings[r.UEI]
		if !ok || seen[m.ProfileID] {
			continue
		}
		if p, ok := byID[m.ProfileID]; ok {
			seen[p.ID] = true
			out = append(out, model.ProfileName{ID: p.ID, CanonicalName: p.CanonicalName, DisplayName: p.DisplayName})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) StartRun(_ context.Context, runType model.AggregationRunType) (*model.AggregationRunStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := model.AggregationRunStats{
		ID:        fmt.Sprintf("run-%d", len(f.runs)+1),
		RunType:   runType,
		Status:    model.AggregationRunning,
		StartedAt: time.Now(),
	}
	f.runs = append(f.runs, run)
	return &run, nil
}

func (f *fakeStore) finish(run *model.AggregationRunStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.runs {
		if f.runs[i].ID == run.ID {
			now := time.Now()
			f.runs[i] = *run
			f.runs[i].CompletedAt = &now
			return nil
		}
	}
	return fmt.Errorf("run %s not found", run.ID)
}

func (f *fakeStore) CompleteRun(_ context.Context, run *model.AggregationRunStats) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	return f.finish(run)
}

func (f *fakeStore) FailRun(_ context.Context, run *model.AggregationRunStats) error {
	return f.finish(run)
}

func (f *fakeStore) LatestRun(_ context.Context) (*model.AggregationRunStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return nil, nil
	}
	run := f.runs[len(f.runs)-1]
	return &run, nil
}

func (f *fakeStore) profile(canonical string) *model.ContractorProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[canonical]
}

func (f *fakeStore) mappingsFor(profileID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.mappings {
		if m.ProfileID == profileID {
			n++
		}
	}
	return n
}

func (f *fakeStore) relsFor(profileID int64) []model.AgencyRelationship {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AgencyRelationship
	for _, r := range f.rels {
		if r.ProfileID == profileID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agency < out[j].Agency })
	return out
}
