package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mealmatch/backend/internal/domain"
)

// GetVendorCatalogVersion reads the vendor's monotonic catalog version
func (s *Store) GetVendorCatalogVersion(ctx context.Context, vendorID string) (int64, error) {
	const query = `SELECT catalog_version FROM vendors WHERE id = $1`

	var version int64
	err := s.db.QueryRowContext(ctx, query, vendorID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrVendorNotFound
		}
		return 0, fmt.Errorf("%w: query catalog version: %v", domain.ErrStoreUnavailable, err)
	}

	return version, nil
}

// QueryActiveProducts fetches active vendor products matching the filter,
// newest first. Allergen exclusion uses array overlap; required tags use
// array containment, applied only when the filter carries tags.
func (s *Store) QueryActiveProducts(ctx context.Context, vendorID string, filter domain.ProductFilter) ([]domain.Product, error) {
	query := `
		SELECT id, vendor_id, name, status, allergens, dietary_tags, nutrition, updated_at
		FROM products
		WHERE vendor_id = $1
		  AND status = $2
		  AND NOT (allergens && $3)
	`
	args := []interface{}{vendorID, domain.ProductStatusActive, pq.Array(filter.ExcludeAllergens)}

	if len(filter.RequireTags) > 0 {
		query += ` AND dietary_tags @> $4`
		args = append(args, pq.Array(filter.RequireTags))
	}

	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query products: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		var nutritionRaw []byte

		err := rows.Scan(
			&p.ID,
			&p.VendorID,
			&p.Name,
			&p.Status,
			pq.Array(&p.Allergens),
			pq.Array(&p.DietaryTags),
			&nutritionRaw,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}

		if len(nutritionRaw) > 0 {
			if err := json.Unmarshal(nutritionRaw, &p.Nutrition); err != nil {
				return nil, fmt.Errorf("decode nutrition for product %s: %w", p.ID, err)
			}
		}

		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate products: %v", domain.ErrStoreUnavailable, err)
	}

	return products, nil
}
