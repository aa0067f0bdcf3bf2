package domain

import (
	"context"
	"time"
)

// ProfileStore reads customer health profiles. Profiles are owned by the
// health-metrics calculator; this engine never writes them.
type ProfileStore interface {
	GetHealthProfile(ctx context.Context, customerID string) (*HealthProfile, error)
}

// PolicyStore reads active vendor policies matching a customer's conditions.
type PolicyStore interface {
	GetActivePolicies(ctx context.Context, vendorID string, conditionCodes []string) ([]Policy, error)
}

// CatalogStore serves the vendor catalog. The version is a per-vendor
// monotonic counter bumped externally on meaningful catalog changes; the
// engine reads it purely as a cache-key dimension.
type CatalogStore interface {
	GetVendorCatalogVersion(ctx context.Context, vendorID string) (int64, error)
	QueryActiveProducts(ctx context.Context, vendorID string, filter ProductFilter) ([]Product, error)
}

// FastCache is the ephemeral result tier. Entries carry their own expiry, so
// a Get needs no TTL check by the caller. The tier is optional; a nil port is
// treated as always-miss.
type FastCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DurableCache is the durable result tier. Expiry is stored alongside the
// value and checked by the reader; expired rows stay until swept.
type DurableCache interface {
	Get(ctx context.Context, key MatchCacheKey) ([]byte, time.Time, error)
	Upsert(ctx context.Context, key MatchCacheKey, value []byte, expiry time.Time) error
}

// Scorer ranks a candidate pool against the effective constraint set. The
// in-process implementation is the fallback of record; an optional remote
// delegate may be tried ahead of it.
type Scorer interface {
	Score(ctx context.Context, candidates []Product, policy MergedPolicy, preferTags []string, now time.Time) ([]ScoredResult, error)
}

// AuditSink receives fire-and-forget observability events. Failures to
// notify must never fail the request.
type AuditSink interface {
	Notify(ctx context.Context, event AuditEvent) error
}
