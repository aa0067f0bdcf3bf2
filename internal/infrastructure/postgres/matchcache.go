package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mealmatch/backend/internal/domain"
)

// Get reads a durable-tier entry by composite key. The stored expiry comes
// back with the value; the caller decides whether the entry is still live.
func (s *Store) Get(ctx context.Context, key domain.MatchCacheKey) ([]byte, time.Time, error) {
	const query = `
		SELECT results, expires_at
		FROM match_cache
		WHERE vendor_id = $1 AND customer_id = $2 AND catalog_version = $3 AND k = $4
	`

	var value []byte
	var expiry time.Time

	err := s.db.QueryRowContext(ctx, query, key.VendorID, key.CustomerID, key.CatalogVersion, key.K).
		Scan(&value, &expiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, domain.ErrCacheMiss
		}
		return nil, time.Time{}, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	return value, expiry, nil
}

// Upsert writes a durable-tier entry, replacing any previous value under the
// same composite key. Concurrent writers racing the same miss overwrite each
// other with equivalent values, which is safe.
func (s *Store) Upsert(ctx context.Context, key domain.MatchCacheKey, value []byte, expiry time.Time) error {
	const query = `
		INSERT INTO match_cache (vendor_id, customer_id, catalog_version, k, results, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (vendor_id, customer_id, catalog_version, k)
		DO UPDATE SET results = EXCLUDED.results, expires_at = EXCLUDED.expires_at
	`

	_, err := s.db.ExecContext(ctx, query, key.VendorID, key.CustomerID, key.CatalogVersion, key.K, value, expiry)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	return nil
}

// SweepExpired deletes TTL-expired durable rows and returns how many went.
// Version-bumped entries also die here once their expiry passes, bounding
// the growth the implicit invalidation scheme would otherwise allow.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM match_cache WHERE expires_at < NOW()`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("sweep match cache: %w", err)
	}

	return result.RowsAffected()
}
