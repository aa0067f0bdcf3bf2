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

// GetHealthProfile loads a customer's health profile. A missing row maps to
// ErrProfileNotFound; any other failure is a store error.
func (s *Store) GetHealthProfile(ctx context.Context, customerID string) (*domain.HealthProfile, error) {
	const query = `
		SELECT customer_id, avoid_allergens, diet_goals, conditions, derived_limits, updated_at
		FROM health_profiles
		WHERE customer_id = $1
	`

	profile := domain.HealthProfile{}
	var limitsRaw []byte

	err := s.db.QueryRowContext(ctx, query, customerID).Scan(
		&profile.CustomerID,
		pq.Array(&profile.AvoidAllergens),
		pq.Array(&profile.DietGoals),
		pq.Array(&profile.Conditions),
		&limitsRaw,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: query health profile: %v", domain.ErrStoreUnavailable, err)
	}

	if len(limitsRaw) > 0 {
		if err := json.Unmarshal(limitsRaw, &profile.DerivedLimits); err != nil {
			return nil, fmt.Errorf("decode derived limits for %s: %w", customerID, err)
		}
	}

	return &profile, nil
}
