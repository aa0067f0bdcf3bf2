package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/mealmatch/backend/internal/domain"
)

// fakeProfileStore serves canned profiles by customer id
type fakeProfileStore struct {
	profiles map[string]*domain.HealthProfile
	err      error
}

func (f *fakeProfileStore) GetHealthProfile(_ context.Context, customerID string) (*domain.HealthProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	profile, ok := f.profiles[customerID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	// Hand out a copy so override application cannot leak into the fixture
	clone := *profile
	clone.AvoidAllergens = append([]string(nil), profile.AvoidAllergens...)
	clone.DietGoals = append([]string(nil), profile.DietGoals...)
	clone.Conditions = append([]string(nil), profile.Conditions...)
	if profile.DerivedLimits != nil {
		clone.DerivedLimits = make(map[string]float64, len(profile.DerivedLimits))
		for k, v := range profile.DerivedLimits {
			clone.DerivedLimits[k] = v
		}
	}
	return &clone, nil
}

// fakePolicyStore serves canned policies regardless of condition codes
type fakePolicyStore struct {
	policies []domain.Policy
	err      error
	gotCodes []string
}

func (f *fakePolicyStore) GetActivePolicies(_ context.Context, _ string, conditionCodes []string) ([]domain.Policy, error) {
	f.gotCodes = conditionCodes
	if f.err != nil {
		return nil, f.err
	}
	return f.policies, nil
}

// fakeCatalogStore applies ProductFilter in memory the way the real stores
// do in SQL/Cypher, so retriever tests exercise genuine filter semantics
type fakeCatalogStore struct {
	version  int64
	products []domain.Product
	err      error
	queries  []domain.ProductFilter
}

func (f *fakeCatalogStore) GetVendorCatalogVersion(_ context.Context, _ string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.version, nil
}

func (f *fakeCatalogStore) QueryActiveProducts(_ context.Context, vendorID string, filter domain.ProductFilter) ([]domain.Product, error) {
	f.queries = append(f.queries, filter)
	if f.err != nil {
		return nil, f.err
	}

	var matched []domain.Product
	for _, p := range f.products {
		if p.VendorID != vendorID || p.Status != domain.ProductStatusActive {
			continue
		}
		if hasAnyTag(p.Allergens, filter.ExcludeAllergens) {
			continue
		}
		if !hasAllTags(p.DietaryTags, filter.RequireTags) {
			continue
		}
		matched = append(matched, p)
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
	}
	return matched, nil
}

func hasAnyTag(tags, probe []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, t := range probe {
		if set[t] {
			return true
		}
	}
	return false
}

func hasAllTags(tags, required []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, t := range required {
		if !set[t] {
			return false
		}
	}
	return true
}

// fakeFastCache is an in-memory fast tier without TTL behavior
type fakeFastCache struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  bool
	gets  int
	sets  int
}

func newFakeFastCache() *fakeFastCache {
	return &fakeFastCache{data: make(map[string][]byte)}
}

func (f *fakeFastCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.fail {
		return nil, domain.ErrCacheUnavailable
	}
	value, ok := f.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return value, nil
}

func (f *fakeFastCache) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.fail {
		return domain.ErrCacheUnavailable
	}
	f.data[key] = value
	return nil
}

// fakeDurableCache is an in-memory durable tier that stores expiry alongside
// the value, like the Postgres implementation
type fakeDurableCache struct {
	mu      sync.Mutex
	entries map[domain.MatchCacheKey]durableEntry
	fail    bool
	upserts int
}

type durableEntry struct {
	value  []byte
	expiry time.Time
}

func newFakeDurableCache() *fakeDurableCache {
	return &fakeDurableCache{entries: make(map[domain.MatchCacheKey]durableEntry)}
}

func (f *fakeDurableCache) Get(_ context.Context, key domain.MatchCacheKey) ([]byte, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, time.Time{}, domain.ErrCacheUnavailable
	}
	entry, ok := f.entries[key]
	if !ok {
		return nil, time.Time{}, domain.ErrCacheMiss
	}
	return entry.value, entry.expiry, nil
}

func (f *fakeDurableCache) Upsert(_ context.Context, key domain.MatchCacheKey, value []byte, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.fail {
		return domain.ErrCacheUnavailable
	}
	f.entries[key] = durableEntry{value: value, expiry: expiry}
	return nil
}

// fakeScorer is a remote-delegate stand-in
type fakeScorer struct {
	items []domain.ScoredResult
	err   error
	calls int
}

func (f *fakeScorer) Score(_ context.Context, _ []domain.Product, _ domain.MergedPolicy, _ []string, _ time.Time) ([]domain.ScoredResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

// fakeAuditSink records events it was notified of
type fakeAuditSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
	done   chan struct{}
}

func newFakeAuditSink() *fakeAuditSink {
	return &fakeAuditSink{done: make(chan struct{}, 16)}
}

func (f *fakeAuditSink) Notify(_ context.Context, event domain.AuditEvent) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func (f *fakeAuditSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
