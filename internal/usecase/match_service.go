package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mealmatch/backend/internal/domain"
	"github.com/mealmatch/backend/internal/metrics"
)

// Result-size bounds. Each entry point has its own default; both clamp to
// [minResults, maxResults].
const (
	minResults      = 1
	maxResults      = 200
	defaultK        = 20
	defaultPreviewK = 24
)

// auditTimeout bounds the fire-and-forget audit notification
const auditTimeout = 2 * time.Second

// MatchServiceConfig holds configuration for the match service
type MatchServiceConfig struct {
	DefaultK        int
	DefaultPreviewK int
}

// MatchService orchestrates the matching pipeline: profile load, policy
// merge, candidate retrieval, scoring, and (in persisted mode) the two-tier
// result cache.
type MatchService struct {
	profiles  domain.ProfileStore
	policies  domain.PolicyStore
	catalog   domain.CatalogStore
	retriever *CandidateRetriever
	cache     *CacheCoordinator
	local     domain.Scorer
	remote    domain.Scorer // optional delegate, tried first when non-nil
	audit     domain.AuditSink
	metrics   *metrics.Metrics
	log       zerolog.Logger
	clock     func() time.Time

	defaultK        int
	defaultPreviewK int
}

// NewMatchService wires the matching pipeline. remote and audit may be nil.
func NewMatchService(
	profiles domain.ProfileStore,
	policies domain.PolicyStore,
	catalog domain.CatalogStore,
	cache *CacheCoordinator,
	remote domain.Scorer,
	audit domain.AuditSink,
	m *metrics.Metrics,
	log zerolog.Logger,
	config MatchServiceConfig,
) *MatchService {
	k := config.DefaultK
	if k <= 0 {
		k = defaultK
	}
	previewK := config.DefaultPreviewK
	if previewK <= 0 {
		previewK = defaultPreviewK
	}

	return &MatchService{
		profiles:        profiles,
		policies:        policies,
		catalog:         catalog,
		retriever:       NewCandidateRetriever(catalog, m, log),
		cache:           cache,
		local:           NewLocalScorer(),
		remote:          remote,
		audit:           audit,
		metrics:         m,
		log:             log.With().Str("component", "match_service").Logger(),
		clock:           time.Now,
		defaultK:        k,
		defaultPreviewK: previewK,
	}
}

// GetMatchesForCustomer returns the ranked recommendation list for a
// customer's persisted health profile, served from cache when a valid entry
// exists for the current catalog version.
func (s *MatchService) GetMatchesForCustomer(ctx context.Context, vendorID, customerID string, k int) (*domain.MatchResponse, error) {
	if vendorID == "" || customerID == "" {
		return nil, domain.ErrInvalidRequest
	}
	k = clampK(k, s.defaultK)

	start := s.clock()
	response, err := s.matchPersisted(ctx, vendorID, customerID, k)
	s.observe("persisted", start, err)
	return response, err
}

func (s *MatchService) matchPersisted(ctx context.Context, vendorID, customerID string, k int) (*domain.MatchResponse, error) {
	version, err := s.catalog.GetVendorCatalogVersion(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("catalog version: %w", err)
	}

	profile, err := s.loadProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		// Matching degrades gracefully for incomplete profiles
		return &domain.MatchResponse{Items: []domain.ScoredResult{}, CatalogVersion: version}, nil
	}

	key := domain.MatchCacheKey{VendorID: vendorID, CustomerID: customerID, CatalogVersion: version, K: k}
	if items, ok := s.cache.Get(ctx, key); ok {
		return &domain.MatchResponse{Items: items, Cached: true, CatalogVersion: version}, nil
	}

	items, err := s.computeMatches(ctx, vendorID, profile, k)
	if err != nil {
		return nil, err
	}

	s.cache.Put(ctx, key, items)
	s.notifyAudit(vendorID, customerID, len(items), k)

	return &domain.MatchResponse{Items: items, CatalogVersion: version}, nil
}

// GetMatchesForCustomerWithOverrides previews matches with caller-supplied
// additions layered over the persisted profile. Overrides only ever add
// constraints. The result is hypothetical and is never written to either
// cache tier.
func (s *MatchService) GetMatchesForCustomerWithOverrides(
	ctx context.Context,
	vendorID, customerID string,
	overrides domain.MatchOverrides,
	k int,
) (*domain.MatchResponse, error) {
	if vendorID == "" || customerID == "" {
		return nil, domain.ErrInvalidRequest
	}
	k = clampK(k, s.defaultPreviewK)

	start := s.clock()
	response, err := s.matchPreview(ctx, vendorID, customerID, overrides, k)
	s.observe("preview", start, err)
	return response, err
}

func (s *MatchService) matchPreview(
	ctx context.Context,
	vendorID, customerID string,
	overrides domain.MatchOverrides,
	k int,
) (*domain.MatchResponse, error) {
	version, err := s.catalog.GetVendorCatalogVersion(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("catalog version: %w", err)
	}

	profile, err := s.loadProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return &domain.MatchResponse{Items: []domain.ScoredResult{}, CatalogVersion: version}, nil
	}

	applyOverrides(profile, overrides)

	items, err := s.computeMatches(ctx, vendorID, profile, k)
	if err != nil {
		return nil, err
	}

	return &domain.MatchResponse{Items: items, CatalogVersion: version}, nil
}

// computeMatches runs policy merge, retrieval, and scoring for an effective
// profile and truncates to k.
func (s *MatchService) computeMatches(ctx context.Context, vendorID string, profile *domain.HealthProfile, k int) ([]domain.ScoredResult, error) {
	policies, err := s.policies.GetActivePolicies(ctx, vendorID, profile.Conditions)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}

	merged := MergePolicies(policies)

	candidates, err := s.retriever.Fetch(ctx, vendorID, profile.AvoidAllergens, merged.RequiredTags)
	if err != nil {
		return nil, err
	}
	s.metrics.CandidatePoolSize.Observe(float64(len(candidates)))

	// Profile-derived ceilings apply last, over the vendor's merged limits
	for key, limit := range profile.DerivedLimits {
		merged.HardLimits[key] = limit
	}

	preferTags := unionTags(append([]string(nil), merged.BonusTags...), profile.DietGoals)
	now := s.clock()

	items := s.runScorer(ctx, candidates, merged, preferTags, now)
	if len(items) > k {
		items = items[:k]
	}
	if items == nil {
		items = []domain.ScoredResult{}
	}
	return items, nil
}

// runScorer tries the remote delegate first when configured; on any delegate
// error the in-process scorer is the fallback of record. The local scorer
// cannot fail.
func (s *MatchService) runScorer(
	ctx context.Context,
	candidates []domain.Product,
	merged domain.MergedPolicy,
	preferTags []string,
	now time.Time,
) []domain.ScoredResult {
	if s.remote != nil {
		items, err := s.remote.Score(ctx, candidates, merged, preferTags, now)
		if err == nil {
			return items
		}
		s.metrics.RemoteScorerFallbacksTotal.Inc()
		s.log.Warn().Err(err).Msg("remote scorer failed, using in-process scorer")
	}

	items, _ := s.local.Score(ctx, candidates, merged, preferTags, now)
	return items
}

// loadProfile maps a missing profile to nil rather than an error; genuine
// store failures propagate.
func (s *MatchService) loadProfile(ctx context.Context, customerID string) (*domain.HealthProfile, error) {
	profile, err := s.profiles.GetHealthProfile(ctx, customerID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

// notifyAudit emits the observability event off the request path. Failures
// are logged and never fail the request.
func (s *MatchService) notifyAudit(vendorID, customerID string, count, k int) {
	if s.audit == nil {
		return
	}
	event := domain.AuditEvent{
		ID:         uuid.NewString(),
		Action:     "read",
		Entity:     "matches",
		VendorID:   vendorID,
		CustomerID: customerID,
		Count:      count,
		K:          k,
		OccurredAt: s.clock(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := s.audit.Notify(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("event_id", event.ID).Msg("audit notify failed")
		}
	}()
}

func (s *MatchService) observe(mode string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.MatchRequestsTotal.WithLabelValues(mode, status).Inc()
	s.metrics.MatchDuration.WithLabelValues(mode).Observe(s.clock().Sub(start).Seconds())
}

// applyOverrides unions caller-supplied additions into the profile in place.
// Nothing persisted is ever removed.
func applyOverrides(profile *domain.HealthProfile, overrides domain.MatchOverrides) {
	profile.AvoidAllergens = unionTags(profile.AvoidAllergens, normalizeTags(overrides.Allergens))
	profile.AvoidAllergens = unionTags(profile.AvoidAllergens, parseRequiredAllergens(overrides.Required))
	profile.DietGoals = unionTags(profile.DietGoals, normalizeTags(overrides.Preferred))
	profile.Conditions = unionTags(profile.Conditions, normalizeTags(overrides.Conditions))

	if len(overrides.Limits) > 0 {
		if profile.DerivedLimits == nil {
			profile.DerivedLimits = make(map[string]float64, len(overrides.Limits))
		}
		for key, limit := range overrides.Limits {
			profile.DerivedLimits[key] = limit
		}
	}
}

func clampK(k, fallback int) int {
	if k == 0 {
		k = fallback
	}
	if k < minResults {
		return minResults
	}
	if k > maxResults {
		return maxResults
	}
	return k
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrProfileNotFound)
}
