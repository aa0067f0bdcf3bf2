package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mealmatch/backend/internal/domain"
	"github.com/mealmatch/backend/internal/metrics"
)

// resultTTL is how long a computed ranking stays valid in both tiers
const resultTTL = 15 * time.Minute

// CacheCoordinator looks up and stores ranked match results across the fast
// ephemeral tier and the durable tier. The fast tier is optional: when nil it
// behaves as always-miss, degrading the system to durable-tier-only.
//
// Invalidation is implicit. A catalog-version bump changes the key, so old
// entries simply stop being looked up; TTL-expired durable rows linger until
// swept by the matchctl sweep command.
type CacheCoordinator struct {
	fast    domain.FastCache
	durable domain.DurableCache
	metrics *metrics.Metrics
	log     zerolog.Logger
	clock   func() time.Time
}

// NewCacheCoordinator creates a coordinator over the two tiers. fast may be
// nil.
func NewCacheCoordinator(fast domain.FastCache, durable domain.DurableCache, m *metrics.Metrics, log zerolog.Logger) *CacheCoordinator {
	return &CacheCoordinator{
		fast:    fast,
		durable: durable,
		metrics: m,
		log:     log.With().Str("component", "match_cache").Logger(),
		clock:   time.Now,
	}
}

// Get checks the fast tier, then the durable tier. First hit wins. Tier
// failures are absorbed as misses; only a decode of corrupt bytes is logged
// beyond debug level.
func (c *CacheCoordinator) Get(ctx context.Context, key domain.MatchCacheKey) ([]domain.ScoredResult, bool) {
	if c.fast != nil {
		raw, err := c.fast.Get(ctx, fastKey(key))
		if err == nil {
			if results, ok := c.decode(raw); ok {
				c.metrics.CacheHitsTotal.WithLabelValues("fast").Inc()
				return results, true
			}
		}
		c.metrics.CacheMissesTotal.WithLabelValues("fast").Inc()
	}

	raw, expiry, err := c.durable.Get(ctx, key)
	if err == nil && c.clock().Before(expiry) {
		if results, ok := c.decode(raw); ok {
			c.metrics.CacheHitsTotal.WithLabelValues("durable").Inc()
			return results, true
		}
	}
	c.metrics.CacheMissesTotal.WithLabelValues("durable").Inc()

	return nil, false
}

// Put writes the result list to both tiers. The tiers are independent and
// idempotent, so a partial failure is tolerated and only logged: the next
// read recomputes if both tiers miss.
func (c *CacheCoordinator) Put(ctx context.Context, key domain.MatchCacheKey, results []domain.ScoredResult) {
	raw, err := json.Marshal(results)
	if err != nil {
		c.log.Error().Err(err).Msg("encode match results for cache")
		return
	}

	if c.fast != nil {
		if err := c.fast.SetWithTTL(ctx, fastKey(key), raw, resultTTL); err != nil {
			c.log.Warn().Err(err).Str("vendor_id", key.VendorID).Msg("fast tier write failed")
		}
	}

	expiry := c.clock().Add(resultTTL)
	if err := c.durable.Upsert(ctx, key, raw, expiry); err != nil {
		c.log.Warn().Err(err).Str("vendor_id", key.VendorID).Msg("durable tier write failed")
	}
}

func (c *CacheCoordinator) decode(raw []byte) ([]domain.ScoredResult, bool) {
	var results []domain.ScoredResult
	if err := json.Unmarshal(raw, &results); err != nil {
		c.log.Warn().Err(err).Msg("corrupt cache entry, treating as miss")
		return nil, false
	}
	return results, true
}

// fastKey renders the composite key for the flat-namespace fast tier
func fastKey(key domain.MatchCacheKey) string {
	return fmt.Sprintf("matches:%s:%s:v%d:k%d", key.VendorID, key.CustomerID, key.CatalogVersion, key.K)
}
