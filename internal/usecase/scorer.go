package usecase

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/mealmatch/backend/internal/domain"
)

// Scoring weights. The base score assumes a neutral candidate; preference
// overlap can add up to 0.4, the sodium soft penalty can subtract up to 0.2,
// and freshness can add up to 0.05. The sum is clamped to [0,1].
const (
	baseScore        = 0.6
	preferenceWeight = 0.4
	softPenaltyCap   = 0.2
	recencyWeight    = 0.05
	recencyWindow    = 90 * 24 * time.Hour
)

// sodiumKey is the one soft-limit nutrition key the scorer penalizes
const sodiumKey = "sodium_mg"

// LocalScorer is the in-process scoring implementation and the fallback of
// record when a remote delegate is configured.
type LocalScorer struct{}

// NewLocalScorer creates the in-process scorer
func NewLocalScorer() *LocalScorer {
	return &LocalScorer{}
}

// Score applies hard-limit rejection, then computes a bounded [0,1] relevance
// score per surviving candidate and sorts by (score desc, updatedAt desc).
// It is pure: fixed inputs always produce identical output.
func (s *LocalScorer) Score(
	_ context.Context,
	candidates []domain.Product,
	policy domain.MergedPolicy,
	preferTags []string,
	now time.Time,
) ([]domain.ScoredResult, error) {
	results := make([]domain.ScoredResult, 0, len(candidates))

	for _, product := range candidates {
		if violatesHardLimits(product, policy.HardLimits) {
			continue
		}

		hit := preferenceHit(product.DietaryTags, preferTags)
		penalty := sodiumPenalty(product.Nutrition, policy.HardLimits)
		recency := recencyBoost(product.UpdatedAt, now)

		score := clamp(baseScore+preferenceWeight*hit-penalty+recencyWeight*recency, 0, 1)

		results = append(results, domain.ScoredResult{
			Product:      product,
			Score:        score,
			ScorePercent: int(math.Round(score * 100)),
			UpdatedAtMs:  product.UpdatedAt.UnixMilli(),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UpdatedAtMs > results[j].UpdatedAtMs
	})

	return results, nil
}

// violatesHardLimits reports whether any known nutrition value exceeds its
// ceiling. Absent nutrition keys never cause rejection: unknown is not
// violating.
func violatesHardLimits(product domain.Product, hardLimits map[string]float64) bool {
	for key, limit := range hardLimits {
		value, ok := product.Nutrition[key]
		if !ok {
			continue
		}
		if value > limit {
			return true
		}
	}
	return false
}

// preferenceHit is the fraction of preferred tags the product carries.
// Zero when there are no preferences.
func preferenceHit(dietaryTags, preferTags []string) float64 {
	if len(preferTags) == 0 {
		return 0
	}
	carried := make(map[string]bool, len(dietaryTags))
	for _, t := range dietaryTags {
		carried[t] = true
	}
	matched := 0
	for _, t := range preferTags {
		if carried[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(preferTags))
}

// sodiumPenalty ramps linearly from zero at half the sodium ceiling to the
// cap at the ceiling. It only applies when both the product's sodium value
// and a positive sodium hard limit are present.
func sodiumPenalty(nutrition, hardLimits map[string]float64) float64 {
	value, haveValue := nutrition[sodiumKey]
	limit, haveLimit := hardLimits[sodiumKey]
	if !haveValue || !haveLimit || limit <= 0 {
		return 0
	}
	half := limit / 2
	return clamp((value-half)/half*softPenaltyCap, 0, softPenaltyCap)
}

// recencyBoost decays linearly from 1 for a just-updated product to 0 at 90
// days old.
func recencyBoost(updatedAt, now time.Time) float64 {
	age := now.Sub(updatedAt)
	if age < 0 {
		age = 0
	}
	fraction := float64(age) / float64(recencyWindow)
	if fraction > 1 {
		fraction = 1
	}
	return 1 - fraction
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
