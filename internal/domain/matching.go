package domain

import "time"

// HealthProfile is the customer's health/dietary intake record. It is produced
// and owned by the health-metrics calculator; this engine only reads it.
type HealthProfile struct {
	CustomerID     string             `json:"customerId"`
	AvoidAllergens []string           `json:"avoidAllergens"`
	DietGoals      []string           `json:"dietGoals"`
	Conditions     []string           `json:"conditions"`
	DerivedLimits  map[string]float64 `json:"derivedLimits"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Policy is one condition-triggered vendor rule. A customer with multiple
// conditions can have multiple policies apply simultaneously.
type Policy struct {
	ID            string             `json:"id"`
	VendorID      string             `json:"vendorId"`
	ConditionCode string             `json:"conditionCode"`
	Active        bool               `json:"active"`
	HardLimits    map[string]float64 `json:"hardLimits"`
	SoftLimits    map[string]float64 `json:"softLimits"`
	RequiredTags  []string           `json:"requiredTags"`
	BonusTags     []string           `json:"bonusTags"`
	PenaltyTags   []string           `json:"penaltyTags"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// MergedPolicy is the effective constraint set for one request, computed by
// folding every applicable Policy. Numeric limit maps carry last-applied-wins
// semantics per key; tag slices are de-duplicated unions.
type MergedPolicy struct {
	HardLimits   map[string]float64 `json:"hardLimits"`
	SoftLimits   map[string]float64 `json:"softLimits"`
	RequiredTags []string           `json:"requiredTags"`
	BonusTags    []string           `json:"bonusTags"`
	PenaltyTags  []string           `json:"penaltyTags"`
}

// Product statuses. Only active products are eligible for matching.
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
	ProductStatusArchived = "archived"
)

// Product is a vendor-scoped catalog entry.
type Product struct {
	ID          string             `json:"id"`
	VendorID    string             `json:"vendorId"`
	Name        string             `json:"name"`
	Status      string             `json:"status"`
	Allergens   []string           `json:"allergens"`
	DietaryTags []string           `json:"dietaryTags"`
	Nutrition   map[string]float64 `json:"nutrition"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// ProductFilter narrows a catalog query. ExcludeAllergens and RequireTags are
// both conjunctive: a product must carry none of the former and all of the
// latter. Limit bounds the result size.
type ProductFilter struct {
	ExcludeAllergens []string
	RequireTags      []string
	Limit            int
}

// ScoredResult is a candidate that survived hard-limit rejection, with its
// relevance score. UpdatedAtMs is the freshness tie-break key.
type ScoredResult struct {
	Product      Product `json:"product"`
	Score        float64 `json:"score"`
	ScorePercent int     `json:"scorePercent"`
	UpdatedAtMs  int64   `json:"updatedAtMs"`
}

// MatchResponse is what both matching entry points return to the caller.
type MatchResponse struct {
	Items          []ScoredResult `json:"items"`
	Cached         bool           `json:"cached"`
	CatalogVersion int64          `json:"catalogVersion"`
}

// MatchOverrides are caller-supplied additions for the preview entry point.
// They union into the persisted profile and never remove anything from it.
// Required entries of the form "no X" are parsed into avoided allergens.
type MatchOverrides struct {
	Allergens  []string           `json:"allergens"`
	Preferred  []string           `json:"preferred"`
	Conditions []string           `json:"conditions"`
	Required   []string           `json:"required"`
	Limits     map[string]float64 `json:"limits"`
}

// MatchCacheKey is the composite cache key for a ranked result list. A
// catalog-version bump makes entries under the old version unreachable.
type MatchCacheKey struct {
	VendorID       string
	CustomerID     string
	CatalogVersion int64
	K              int
}

// AuditEvent is the fire-and-forget observability record emitted after a
// successful match computation.
type AuditEvent struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Entity     string    `json:"entity"`
	VendorID   string    `json:"vendorId"`
	CustomerID string    `json:"customerId"`
	Count      int       `json:"count"`
	K          int       `json:"k"`
	OccurredAt time.Time `json:"occurredAt"`
}
