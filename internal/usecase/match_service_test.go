package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mealmatch/backend/internal/domain"
	"github.com/mealmatch/backend/internal/metrics"
)

type serviceFixture struct {
	profiles *fakeProfileStore
	policies *fakePolicyStore
	catalog  *fakeCatalogStore
	fast     *fakeFastCache
	durable  *fakeDurableCache
	remote   *fakeScorer
	audit    *fakeAuditSink
	service  *MatchService
}

func newServiceFixture(t *testing.T, now time.Time) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		profiles: &fakeProfileStore{profiles: map[string]*domain.HealthProfile{}},
		policies: &fakePolicyStore{},
		catalog:  &fakeCatalogStore{version: 1},
		fast:     newFakeFastCache(),
		durable:  newFakeDurableCache(),
		audit:    newFakeAuditSink(),
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	log := zerolog.Nop()

	coordinator := NewCacheCoordinator(f.fast, f.durable, m, log)
	coordinator.clock = func() time.Time { return now }

	f.service = NewMatchService(f.profiles, f.policies, f.catalog, coordinator, nil, f.audit, m, log, MatchServiceConfig{})
	f.service.clock = func() time.Time { return now }
	return f
}

func TestMatchService_GetMatchesForCustomer(t *testing.T) {
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("full pipeline ranks and filters", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{
			CustomerID:     "c1",
			AvoidAllergens: []string{"peanuts"},
			DietGoals:      []string{"vegan"},
			Conditions:     []string{"hypertension"},
			DerivedLimits:  map[string]float64{"sodium_mg": 2000},
			UpdatedAt:      now,
		}
		f.policies.policies = []domain.Policy{
			{
				ID:            "pol-1",
				VendorID:      "v1",
				ConditionCode: "hypertension",
				Active:        true,
				HardLimits:    map[string]float64{"sodium_mg": 2300},
				BonusTags:     []string{"low-sodium"},
				UpdatedAt:     now.Add(-time.Hour),
			},
		}
		f.catalog.products = []domain.Product{
			{
				ID: "vegan-bowl", VendorID: "v1", Status: domain.ProductStatusActive,
				DietaryTags: []string{"vegan", "low-sodium"},
				Nutrition:   map[string]float64{"sodium_mg": 400},
				UpdatedAt:   now,
			},
			{
				ID: "salty-soup", VendorID: "v1", Status: domain.ProductStatusActive,
				Nutrition: map[string]float64{"sodium_mg": 2200},
				UpdatedAt: now,
			},
			{
				ID: "peanut-noodles", VendorID: "v1", Status: domain.ProductStatusActive,
				Allergens:   []string{"peanuts"},
				DietaryTags: []string{"vegan"},
				UpdatedAt:   now,
			},
		}

		response, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if response.Cached {
			t.Error("first call must not report cached")
		}
		if response.CatalogVersion != 1 {
			t.Errorf("catalog version = %d, want 1", response.CatalogVersion)
		}
		if len(response.Items) != 1 {
			t.Fatalf("expected 1 item, got %d: %+v", len(response.Items), response.Items)
		}
		// peanut-noodles is excluded at retrieval, salty-soup exceeds the
		// profile-derived sodium ceiling of 2000 despite the vendor's 2300
		if response.Items[0].Product.ID != "vegan-bowl" {
			t.Errorf("survivor = %s, want vegan-bowl", response.Items[0].Product.ID)
		}
		if response.Items[0].Score <= 0.6 {
			t.Errorf("preferred vegan product should score above base, got %v", response.Items[0].Score)
		}

		if f.policies.gotCodes == nil || f.policies.gotCodes[0] != "hypertension" {
			t.Errorf("policy lookup used codes %v", f.policies.gotCodes)
		}
	})

	t.Run("one qualifying product out of three survives", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{
			CustomerID:     "c1",
			AvoidAllergens: []string{"peanuts"},
			DietGoals:      []string{"low-carb"},
			UpdatedAt:      now,
		}
		f.policies.policies = []domain.Policy{
			{
				ID: "pol-1", VendorID: "v1", Active: true,
				HardLimits:   map[string]float64{"sodium_mg": 500},
				RequiredTags: []string{"vegan"},
				UpdatedAt:    now,
			},
		}
		f.catalog.products = []domain.Product{
			{
				ID: "qualifying", VendorID: "v1", Status: domain.ProductStatusActive,
				DietaryTags: []string{"vegan"},
				Nutrition:   map[string]float64{"sodium_mg": 200},
				UpdatedAt:   now,
			},
			{
				ID: "not-vegan", VendorID: "v1", Status: domain.ProductStatusActive,
				Nutrition: map[string]float64{"sodium_mg": 100},
				UpdatedAt: now,
			},
			{
				ID: "too-salty-vegan", VendorID: "v1", Status: domain.ProductStatusActive,
				DietaryTags: []string{"vegan"},
				Nutrition:   map[string]float64{"sodium_mg": 800},
				UpdatedAt:   now,
			},
		}

		response, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(response.Items) != 1 {
			t.Fatalf("expected exactly 1 item, got %d: %+v", len(response.Items), response.Items)
		}
		if response.Items[0].Product.ID != "qualifying" {
			t.Errorf("survivor = %s, want qualifying", response.Items[0].Product.ID)
		}
		if response.Items[0].Score < 0.6 {
			t.Errorf("score = %v, want >= 0.6", response.Items[0].Score)
		}
	})

	t.Run("second call within ttl is served from cache", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}
		f.catalog.products = []domain.Product{
			{ID: "p1", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		first, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10)
		if err != nil {
			t.Fatalf("first call: %v", err)
		}
		if first.Cached {
			t.Error("first call must not be cached")
		}

		queriesBefore := len(f.catalog.queries)
		second, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10)
		if err != nil {
			t.Fatalf("second call: %v", err)
		}

		if !second.Cached {
			t.Error("second call should be served from cache")
		}
		if len(second.Items) != len(first.Items) {
			t.Errorf("cached items = %d, want %d", len(second.Items), len(first.Items))
		}
		if len(f.catalog.queries) != queriesBefore {
			t.Error("cached call should not hit the catalog for candidates")
		}
	})

	t.Run("catalog version bump bypasses the cache", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}
		f.catalog.products = []domain.Product{
			{ID: "p1", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		if _, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10); err != nil {
			t.Fatalf("first call: %v", err)
		}

		f.catalog.version = 2
		response, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10)
		if err != nil {
			t.Fatalf("post-bump call: %v", err)
		}

		if response.Cached {
			t.Error("entry keyed to the old catalog version must not serve")
		}
		if response.CatalogVersion != 2 {
			t.Errorf("catalog version = %d, want 2", response.CatalogVersion)
		}
	})

	t.Run("different k is a separate cache entry", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}
		f.catalog.products = []domain.Product{
			{ID: "p1", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
			{ID: "p2", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now.Add(-time.Hour)},
		}

		if _, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 1); err != nil {
			t.Fatalf("k=1 call: %v", err)
		}

		response, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 2)
		if err != nil {
			t.Fatalf("k=2 call: %v", err)
		}
		if response.Cached {
			t.Error("different k must not reuse the k=1 entry")
		}
		if len(response.Items) != 2 {
			t.Errorf("k=2 items = %d, want 2", len(response.Items))
		}
	})

	t.Run("missing profile yields empty result without error", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.catalog.products = []domain.Product{
			{ID: "p1", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		response, err := f.service.GetMatchesForCustomer(ctx, "v1", "nobody", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if response.Items == nil || len(response.Items) != 0 {
			t.Errorf("expected empty (non-nil) items, got %+v", response.Items)
		}
		if f.durable.upserts != 0 {
			t.Error("missing-profile result must not be cached")
		}
	})

	t.Run("strict required tags fall back rather than zero out", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{
			CustomerID: "c1",
			Conditions: []string{"celiac"},
			UpdatedAt:  now,
		}
		f.policies.policies = []domain.Policy{
			{
				ID: "pol-strict", VendorID: "v1", ConditionCode: "celiac", Active: true,
				RequiredTags: []string{"certified-gluten-free"},
				UpdatedAt:    now,
			},
		}
		f.catalog.products = []domain.Product{
			{ID: "untagged", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		response, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(response.Items) != 1 {
			t.Fatalf("fallback should surface the untagged product, got %d items", len(response.Items))
		}
	})

	t.Run("k is clamped", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}

		if _, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10000); err != nil {
			t.Fatalf("oversized k: %v", err)
		}
		keys := make([]domain.MatchCacheKey, 0, len(f.durable.entries))
		for key := range f.durable.entries {
			keys = append(keys, key)
		}
		if len(keys) != 1 || keys[0].K != maxResults {
			t.Errorf("cache key k = %+v, want clamped to %d", keys, maxResults)
		}

		if _, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", -5); err != nil {
			t.Fatalf("negative k: %v", err)
		}
	})

	t.Run("empty ids are rejected", func(t *testing.T) {
		f := newServiceFixture(t, now)

		if _, err := f.service.GetMatchesForCustomer(ctx, "", "c1", 10); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("empty vendor: err = %v, want ErrInvalidRequest", err)
		}
		if _, err := f.service.GetMatchesForCustomer(ctx, "v1", "", 10); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("empty customer: err = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("unknown vendor propagates", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.catalog.err = domain.ErrVendorNotFound

		_, err := f.service.GetMatchesForCustomer(ctx, "ghost", "c1", 10)
		if !errors.Is(err, domain.ErrVendorNotFound) {
			t.Errorf("err = %v, want ErrVendorNotFound", err)
		}
	})

	t.Run("remote scorer failure falls back to local", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.remote = &fakeScorer{err: domain.ErrScorerUnavailable}
		f.service.remote = f.remote
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}
		f.catalog.products = []domain.Product{
			{ID: "p1", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		response, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if f.remote.calls != 1 {
			t.Errorf("remote calls = %d, want 1", f.remote.calls)
		}
		if len(response.Items) != 1 {
			t.Errorf("local fallback produced %d items, want 1", len(response.Items))
		}
	})

	t.Run("remote scorer result is used when it succeeds", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.remote = &fakeScorer{items: []domain.ScoredResult{
			{Product: domain.Product{ID: "remote-pick"}, Score: 0.99, ScorePercent: 99},
		}}
		f.service.remote = f.remote
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}
		f.catalog.products = []domain.Product{
			{ID: "p1", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		response, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(response.Items) != 1 || response.Items[0].Product.ID != "remote-pick" {
			t.Errorf("expected remote ranking, got %+v", response.Items)
		}
	})

	t.Run("audit event fires after computation", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}
		f.catalog.products = []domain.Product{
			{ID: "p1", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		if _, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		select {
		case <-f.audit.done:
		case <-time.After(time.Second):
			t.Fatal("audit notification never fired")
		}
		if f.audit.count() != 1 {
			t.Errorf("audit events = %d, want 1", f.audit.count())
		}
	})
}

func TestMatchService_Preview(t *testing.T) {
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("preview never touches either cache tier", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}
		f.catalog.products = []domain.Product{
			{ID: "p1", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		response, err := f.service.GetMatchesForCustomerWithOverrides(ctx, "v1", "c1", domain.MatchOverrides{}, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if response.Cached {
			t.Error("preview must never report cached")
		}
		if f.fast.sets != 0 || f.durable.upserts != 0 {
			t.Errorf("preview wrote to a cache tier: fast=%d durable=%d", f.fast.sets, f.durable.upserts)
		}
		if f.fast.gets != 0 {
			t.Errorf("preview read the fast tier %d times", f.fast.gets)
		}

		// The persisted path after a preview still computes fresh
		persisted, err := f.service.GetMatchesForCustomer(ctx, "v1", "c1", 10)
		if err != nil {
			t.Fatalf("persisted call: %v", err)
		}
		if persisted.Cached {
			t.Error("preview must not have seeded the persisted path's cache")
		}
	})

	t.Run("override allergens narrow the pool", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{
			CustomerID:     "c1",
			AvoidAllergens: []string{"peanuts"},
			UpdatedAt:      now,
		}
		f.catalog.products = []domain.Product{
			{ID: "dairy-shake", VendorID: "v1", Status: domain.ProductStatusActive, Allergens: []string{"dairy"}, UpdatedAt: now},
			{ID: "fruit-cup", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		overrides := domain.MatchOverrides{Allergens: []string{"Dairy"}}
		response, err := f.service.GetMatchesForCustomerWithOverrides(ctx, "v1", "c1", overrides, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(response.Items) != 1 || response.Items[0].Product.ID != "fruit-cup" {
			t.Errorf("expected only fruit-cup, got %+v", response.Items)
		}
	})

	t.Run("no-prefixed required entries become avoided allergens", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}
		f.catalog.products = []domain.Product{
			{ID: "pb-cookie", VendorID: "v1", Status: domain.ProductStatusActive, Allergens: []string{"peanuts"}, UpdatedAt: now},
			{ID: "rice-cake", VendorID: "v1", Status: domain.ProductStatusActive, UpdatedAt: now},
		}

		overrides := domain.MatchOverrides{Required: []string{"No Peanuts"}}
		response, err := f.service.GetMatchesForCustomerWithOverrides(ctx, "v1", "c1", overrides, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(response.Items) != 1 || response.Items[0].Product.ID != "rice-cake" {
			t.Errorf("expected only rice-cake, got %+v", response.Items)
		}
	})

	t.Run("override limits tighten but never loosen scoring", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{
			CustomerID:    "c1",
			DerivedLimits: map[string]float64{"sodium_mg": 2000},
			UpdatedAt:     now,
		}
		f.catalog.products = []domain.Product{
			{ID: "mild", VendorID: "v1", Status: domain.ProductStatusActive, Nutrition: map[string]float64{"sodium_mg": 900}, UpdatedAt: now},
			{ID: "salty", VendorID: "v1", Status: domain.ProductStatusActive, Nutrition: map[string]float64{"sodium_mg": 1500}, UpdatedAt: now},
		}

		overrides := domain.MatchOverrides{Limits: map[string]float64{"sodium_mg": 1000}}
		response, err := f.service.GetMatchesForCustomerWithOverrides(ctx, "v1", "c1", overrides, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(response.Items) != 1 || response.Items[0].Product.ID != "mild" {
			t.Errorf("expected only mild under the tightened limit, got %+v", response.Items)
		}
	})

	t.Run("override conditions pull in extra policies", func(t *testing.T) {
		f := newServiceFixture(t, now)
		f.profiles.profiles["c1"] = &domain.HealthProfile{CustomerID: "c1", UpdatedAt: now}

		overrides := domain.MatchOverrides{Conditions: []string{"diabetes"}}
		if _, err := f.service.GetMatchesForCustomerWithOverrides(ctx, "v1", "c1", overrides, 10); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(f.policies.gotCodes) != 1 || f.policies.gotCodes[0] != "diabetes" {
			t.Errorf("policy lookup used codes %v, want [diabetes]", f.policies.gotCodes)
		}
	})

	t.Run("missing profile previews as empty", func(t *testing.T) {
		f := newServiceFixture(t, now)

		response, err := f.service.GetMatchesForCustomerWithOverrides(ctx, "v1", "nobody", domain.MatchOverrides{Allergens: []string{"soy"}}, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(response.Items) != 0 {
			t.Errorf("expected empty items, got %+v", response.Items)
		}
	})
}

func TestClampK(t *testing.T) {
	cases := []struct {
		name     string
		k        int
		fallback int
		want     int
	}{
		{"zero uses fallback", 0, 20, 20},
		{"in range passes through", 50, 20, 50},
		{"negative clamps to min", -3, 20, minResults},
		{"oversized clamps to max", 10000, 20, maxResults},
		{"one is allowed", 1, 20, 1},
		{"two hundred is allowed", 200, 20, 200},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := clampK(tc.k, tc.fallback); got != tc.want {
				t.Errorf("clampK(%d, %d) = %d, want %d", tc.k, tc.fallback, got, tc.want)
			}
		})
	}
}
