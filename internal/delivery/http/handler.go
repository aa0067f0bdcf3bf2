package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mealmatch/backend/internal/domain"
	"github.com/mealmatch/backend/internal/usecase"
)

// MatchService is the slice of the matching service the handlers need
type MatchService interface {
	GetMatchesForCustomer(ctx context.Context, vendorID, customerID string, k int) (*domain.MatchResponse, error)
	GetMatchesForCustomerWithOverrides(ctx context.Context, vendorID, customerID string, overrides domain.MatchOverrides, k int) (*domain.MatchResponse, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	matches MatchService
}

// NewHandler creates a new HTTP handler
func NewHandler(matches MatchService) *Handler {
	return &Handler{matches: matches}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "mealmatch-backend",
		"version": "1.0.0",
	})
}

// GetMatches returns the cached-or-computed recommendation list for a
// customer's persisted health profile
func (h *Handler) GetMatches(c *gin.Context) {
	if h.matches == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "matching service not configured"})
		return
	}

	vendorID := c.Param("vendorId")
	customerID := c.Param("customerId")
	k := parseK(c.Query("k"))

	response, err := h.matches.GetMatchesForCustomer(c.Request.Context(), vendorID, customerID, k)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// PreviewMatches computes a fresh, never-cached recommendation list with
// caller-supplied overrides layered over the persisted profile. The body is
// bound loosely: malformed override fields are coerced, not rejected.
func (h *Handler) PreviewMatches(c *gin.Context) {
	if h.matches == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "matching service not configured"})
		return
	}

	vendorID := c.Param("vendorId")
	customerID := c.Param("customerId")

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		body = nil
	}

	overrides := usecase.ParseOverrides(body)

	k := parseK(c.Query("k"))
	if k == 0 {
		if raw, ok := body["k"].(float64); ok {
			k = int(raw)
		}
	}

	response, err := h.matches.GetMatchesForCustomerWithOverrides(c.Request.Context(), vendorID, customerID, overrides, k)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// writeError maps domain sentinel errors to HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request parameters"})
	case errors.Is(err, domain.ErrVendorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "vendor not found"})
	case errors.Is(err, domain.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backing store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// parseK reads a k query value; 0 means "use the entry point's default"
func parseK(raw string) int {
	if raw == "" {
		return 0
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 0 {
		return 0
	}
	return k
}
