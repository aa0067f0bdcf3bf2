package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/mealmatch/backend/internal/domain"
)

// GetActivePolicies returns the vendor's active policies whose condition
// code matches any of the customer's conditions, ordered by (updated_at, id)
// so callers see a stable application order.
func (s *Store) GetActivePolicies(ctx context.Context, vendorID string, conditionCodes []string) ([]domain.Policy, error) {
	if len(conditionCodes) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id, vendor_id, condition_code, active,
		       hard_limits, soft_limits,
		       required_tags, bonus_tags, penalty_tags,
		       updated_at
		FROM vendor_policies
		WHERE vendor_id = $1
		  AND active = TRUE
		  AND condition_code = ANY($2)
		ORDER BY updated_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, vendorID, pq.Array(conditionCodes))
	if err != nil {
		return nil, fmt.Errorf("%w: query policies: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var policies []domain.Policy
	for rows.Next() {
		var p domain.Policy
		var hardRaw, softRaw []byte

		err := rows.Scan(
			&p.ID,
			&p.VendorID,
			&p.ConditionCode,
			&p.Active,
			&hardRaw,
			&softRaw,
			pq.Array(&p.RequiredTags),
			pq.Array(&p.BonusTags),
			pq.Array(&p.PenaltyTags),
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan policy row: %w", err)
		}

		if len(hardRaw) > 0 {
			if err := json.Unmarshal(hardRaw, &p.HardLimits); err != nil {
				return nil, fmt.Errorf("decode hard limits for policy %s: %w", p.ID, err)
			}
		}
		if len(softRaw) > 0 {
			if err := json.Unmarshal(softRaw, &p.SoftLimits); err != nil {
				return nil, fmt.Errorf("decode soft limits for policy %s: %w", p.ID, err)
			}
		}

		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate policies: %v", domain.ErrStoreUnavailable, err)
	}

	return policies, nil
}
