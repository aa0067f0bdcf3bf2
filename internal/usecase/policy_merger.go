package usecase

import (
	"sort"

	"github.com/mealmatch/backend/internal/domain"
)

// MergePolicies folds zero or more active policies into one effective
// constraint set. It never fails: empty input yields an all-empty
// MergedPolicy, i.e. no constraints beyond allergen exclusion.
//
// Numeric limit maps merge key-by-key with last-applied-wins semantics: a
// vendor defining two condition rules with conflicting sodium ceilings gets
// the later one, not the stricter one. Application order is pinned by
// (UpdatedAt, ID) ascending so the outcome does not depend on store
// retrieval order. Tag slices accumulate into de-duplicated unions.
func MergePolicies(policies []domain.Policy) domain.MergedPolicy {
	merged := domain.MergedPolicy{
		HardLimits: make(map[string]float64),
		SoftLimits: make(map[string]float64),
	}

	ordered := make([]domain.Policy, len(policies))
	copy(ordered, policies)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].UpdatedAt.Equal(ordered[j].UpdatedAt) {
			return ordered[i].UpdatedAt.Before(ordered[j].UpdatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, p := range ordered {
		for key, limit := range p.HardLimits {
			merged.HardLimits[key] = limit
		}
		for key, limit := range p.SoftLimits {
			merged.SoftLimits[key] = limit
		}
		merged.RequiredTags = unionTags(merged.RequiredTags, p.RequiredTags)
		merged.BonusTags = unionTags(merged.BonusTags, p.BonusTags)
		merged.PenaltyTags = unionTags(merged.PenaltyTags, p.PenaltyTags)
	}

	return merged
}

// unionTags appends the tags from extra that are not already in base,
// preserving first-seen order.
func unionTags(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, t := range base {
		seen[t] = true
	}
	for _, t := range extra {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		base = append(base, t)
	}
	return base
}
