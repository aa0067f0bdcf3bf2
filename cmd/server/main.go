package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mealmatch/backend/config"
	"github.com/mealmatch/backend/internal/delivery/http"
	"github.com/mealmatch/backend/internal/domain"
	"github.com/mealmatch/backend/internal/infrastructure/audit"
	"github.com/mealmatch/backend/internal/infrastructure/cache"
	"github.com/mealmatch/backend/internal/infrastructure/neo4jcat"
	"github.com/mealmatch/backend/internal/infrastructure/postgres"
	"github.com/mealmatch/backend/internal/infrastructure/scoring"
	"github.com/mealmatch/backend/internal/logger"
	"github.com/mealmatch/backend/internal/metrics"
	"github.com/mealmatch/backend/internal/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env file loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Server.Environment == "development",
	})

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("catalog_backend", cfg.Catalog.Backend).
		Str("fast_tier", cfg.Cache.FastTier).
		Msg("starting mealmatch backend")

	store, err := postgres.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer store.Close()

	catalog, cleanup, err := buildCatalog(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize catalog store")
	}
	if cleanup != nil {
		defer cleanup()
	}

	fastTier, err := buildFastTier(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize fast cache tier")
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	coordinator := usecase.NewCacheCoordinator(fastTier, store, m, log)

	var remote domain.Scorer
	if cfg.Scoring.RemoteEnabled {
		remote = scoring.NewRemoteScorer(scoring.RemoteConfig{
			BaseURL:           cfg.Scoring.RemoteURL,
			APIKey:            cfg.Scoring.RemoteAPIKey,
			Timeout:           cfg.Scoring.RemoteTimeout,
			RequestsPerSecond: cfg.Scoring.RequestsPerSecond,
		})
		log.Info().Str("url", cfg.Scoring.RemoteURL).Msg("remote scorer enabled")
	}

	var sink domain.AuditSink
	if cfg.Audit.Enabled {
		chSink, err := audit.NewClickHouseSink(audit.Config{
			Host:     cfg.Audit.Host,
			Port:     cfg.Audit.Port,
			Database: cfg.Audit.Database,
			Username: cfg.Audit.Username,
			Password: cfg.Audit.Password,
		})
		if err != nil {
			// Audit is observability only; run without it rather than fail startup
			log.Warn().Err(err).Msg("audit sink unavailable, continuing without it")
		} else {
			sink = chSink
			defer chSink.Close()
		}
	}

	matchService := usecase.NewMatchService(
		store,
		store,
		catalog,
		coordinator,
		remote,
		sink,
		m,
		log,
		usecase.MatchServiceConfig{
			DefaultK:        cfg.Matching.DefaultK,
			DefaultPreviewK: cfg.Matching.DefaultPreviewK,
		},
	)

	handler := http.NewHandler(matchService)
	router := http.SetupRouter(cfg, handler, log)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("server listening")

	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// buildCatalog selects the catalog store backend. The returned cleanup, when
// non-nil, must run at shutdown.
func buildCatalog(cfg *config.Config, store *postgres.Store) (domain.CatalogStore, func(), error) {
	switch cfg.Catalog.Backend {
	case "neo4j":
		graph, err := neo4jcat.NewCatalog(neo4jcat.Config{
			URI:      cfg.Catalog.Neo4j.URI,
			Username: cfg.Catalog.Neo4j.Username,
			Password: cfg.Catalog.Neo4j.Password,
			Database: cfg.Catalog.Neo4j.Database,
		})
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			graph.Close(ctx)
		}
		return graph, cleanup, nil
	default:
		return store, nil, nil
	}
}

// buildFastTier selects the fast cache backend; "none" degrades the system
// to durable-tier-only
func buildFastTier(cfg *config.Config) (domain.FastCache, error) {
	switch cfg.Cache.FastTier {
	case "redis":
		return cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	case "none":
		return nil, nil
	default:
		return cache.NewMemoryCache(), nil
	}
}
