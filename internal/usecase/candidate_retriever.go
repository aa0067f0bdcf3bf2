package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mealmatch/backend/internal/domain"
	"github.com/mealmatch/backend/internal/metrics"
)

// maxCandidates bounds the pool fetched per request
const maxCandidates = 500

// CandidateRetriever fetches a bounded pool of vendor-active products
// satisfying allergen exclusion and, when possible, required-tag inclusion.
type CandidateRetriever struct {
	catalog domain.CatalogStore
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewCandidateRetriever creates a retriever backed by the given catalog store
func NewCandidateRetriever(catalog domain.CatalogStore, m *metrics.Metrics, log zerolog.Logger) *CandidateRetriever {
	return &CandidateRetriever{
		catalog: catalog,
		metrics: m,
		log:     log.With().Str("component", "retriever").Logger(),
	}
}

// Fetch runs the tag-constrained pass first, then relaxes to allergen
// exclusion only if that pass came back empty and required tags were set.
// Constraints are never partially applied: the tag clause is either fully
// present or fully absent. Relaxation trades the rigor of the required-tag
// constraint for non-emptiness so a strict vendor policy cannot permanently
// zero out a customer's results.
func (r *CandidateRetriever) Fetch(
	ctx context.Context,
	vendorID string,
	avoidAllergens []string,
	requiredTags []string,
) ([]domain.Product, error) {
	filter := domain.ProductFilter{
		ExcludeAllergens: avoidAllergens,
		RequireTags:      requiredTags,
		Limit:            maxCandidates,
	}

	products, err := r.catalog.QueryActiveProducts(ctx, vendorID, filter)
	if err != nil {
		return nil, fmt.Errorf("candidate query: %w", err)
	}

	if len(products) == 0 && len(requiredTags) > 0 {
		r.log.Debug().
			Str("vendor_id", vendorID).
			Strs("required_tags", requiredTags).
			Msg("tag-constrained pass empty, relaxing required tags")

		filter.RequireTags = nil
		products, err = r.catalog.QueryActiveProducts(ctx, vendorID, filter)
		if err != nil {
			return nil, fmt.Errorf("relaxed candidate query: %w", err)
		}
		r.metrics.FallbackPassTotal.Inc()
	}

	return products, nil
}
