package usecase

import (
	"strings"

	"github.com/mealmatch/backend/internal/domain"
)

// ParseOverrides coerces a loosely-typed preview request body into typed
// overrides. The preview path favors availability over strict validation:
// fields of the wrong shape are silently dropped, never rejected.
func ParseOverrides(raw map[string]interface{}) domain.MatchOverrides {
	return domain.MatchOverrides{
		Allergens:  coerceStringSlice(raw["allergens"]),
		Preferred:  coerceStringSlice(raw["preferred"]),
		Conditions: coerceStringSlice(raw["conditions"]),
		Required:   coerceStringSlice(raw["required"]),
		Limits:     coerceNumberMap(raw["limits"]),
	}
}

// parseRequiredAllergens extracts avoided allergens from free-text required
// entries of the form "no X" ("no peanuts" -> "peanuts"). Entries in any
// other form are ignored.
func parseRequiredAllergens(required []string) []string {
	var allergens []string
	for _, entry := range required {
		text := strings.ToLower(strings.TrimSpace(entry))
		if rest, ok := strings.CutPrefix(text, "no "); ok {
			if allergen := strings.TrimSpace(rest); allergen != "" {
				allergens = append(allergens, allergen)
			}
		}
	}
	return allergens
}

// normalizeTags lowercases and trims tags, dropping empties
func normalizeTags(tags []string) []string {
	var normalized []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			normalized = append(normalized, tag)
		}
	}
	return normalized
}

// coerceStringSlice accepts []interface{} of strings, a lone string, or
// anything else (dropped). JSON decoding hands us []interface{}, never
// []string.
func coerceStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// coerceNumberMap accepts map[string]interface{} with numeric values; any
// non-numeric value is dropped
func coerceNumberMap(value interface{}) map[string]float64 {
	raw, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for key, item := range raw {
		switch n := item.(type) {
		case float64:
			out[key] = n
		case int:
			out[key] = float64(n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
