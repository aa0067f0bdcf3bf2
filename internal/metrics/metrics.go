// Package metrics provides Prometheus metrics for the matching engine
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the matching engine
type Metrics struct {
	// Match pipeline metrics
	MatchRequestsTotal *prometheus.CounterVec
	MatchDuration      *prometheus.HistogramVec
	CandidatePoolSize  prometheus.Histogram
	FallbackPassTotal  prometheus.Counter

	// Cache tier metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Remote scorer metrics
	RemoteScorerFallbacksTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics against the given registerer.
// Pass prometheus.DefaultRegisterer in main; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{}

	m.MatchRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealmatch_match_requests_total",
			Help: "Total match requests by mode and status",
		},
		[]string{"mode", "status"},
	)

	m.MatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mealmatch_match_duration_seconds",
			Help:    "Duration of match computations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	m.CandidatePoolSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mealmatch_candidate_pool_size",
			Help:    "Number of candidates fetched per match computation",
			Buckets: []float64{0, 10, 25, 50, 100, 250, 500},
		},
	)

	m.FallbackPassTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "mealmatch_retriever_fallback_total",
			Help: "Times the required-tag constraint was relaxed to avoid an empty pool",
		},
	)

	m.CacheHitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealmatch_cache_hits_total",
			Help: "Match cache hits by tier",
		},
		[]string{"tier"},
	)

	m.CacheMissesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealmatch_cache_misses_total",
			Help: "Match cache misses by tier",
		},
		[]string{"tier"},
	)

	m.RemoteScorerFallbacksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "mealmatch_remote_scorer_fallbacks_total",
			Help: "Times the remote scorer failed and the in-process scorer took over",
		},
	)

	return m
}
