// Package scoring implements the optional remote scoring delegate. When
// configured it is tried ahead of the in-process scorer; any failure here
// falls back to the local pipeline, which must produce the same output
// shape.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mealmatch/backend/internal/domain"
)

// RemoteScorer calls an external scoring service over HTTP
type RemoteScorer struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	rateLimiter *rate.Limiter
}

// RemoteConfig holds remote scorer configuration
type RemoteConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// scoreRequest is the wire shape sent to the scoring service
type scoreRequest struct {
	Candidates []domain.Product    `json:"candidates"`
	Policy     domain.MergedPolicy `json:"policy"`
	PreferTags []string            `json:"preferTags"`
	Now        int64               `json:"nowMs"`
}

// scoreResponse is the wire shape returned by the scoring service
type scoreResponse struct {
	Items []domain.ScoredResult `json:"items"`
}

// NewRemoteScorer creates a remote scoring client
func NewRemoteScorer(config RemoteConfig) *RemoteScorer {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	return &RemoteScorer{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     config.BaseURL,
		apiKey:      config.APIKey,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// Score delegates ranking to the remote service. Every failure surfaces as
// ErrScorerUnavailable so the caller falls back to the in-process scorer.
func (s *RemoteScorer) Score(
	ctx context.Context,
	candidates []domain.Product,
	policy domain.MergedPolicy,
	preferTags []string,
	now time.Time,
) ([]domain.ScoredResult, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrScorerUnavailable, err)
	}

	payload, err := json.Marshal(scoreRequest{
		Candidates: candidates,
		Policy:     policy,
		PreferTags: preferTags,
		Now:        now.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrScorerUnavailable, err)
	}

	endpoint := fmt.Sprintf("%s/v1/score", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrScorerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrScorerUnavailable, resp.StatusCode, body)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrScorerUnavailable, err)
	}

	return decoded.Items, nil
}
