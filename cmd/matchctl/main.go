// matchctl is the operational companion to the matching backend.
//
// Usage:
//   matchctl sweep                 delete TTL-expired durable cache rows
//   matchctl match --vendor V --customer C [--k N]   run one match and print it
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/mealmatch/backend/config"
	"github.com/mealmatch/backend/internal/infrastructure/postgres"
	"github.com/mealmatch/backend/internal/logger"
	"github.com/mealmatch/backend/internal/metrics"
	"github.com/mealmatch/backend/internal/usecase"
)

var version = "dev"

func main() {
	godotenv.Load()

	app := &cli.App{
		Name:    "matchctl",
		Usage:   "Operational commands for the matching backend",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "sweep",
				Usage:  "Delete TTL-expired rows from the durable match cache",
				Action: runSweep,
			},
			{
				Name:  "match",
				Usage: "Compute matches for one customer and print them as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "vendor", Required: true, Usage: "vendor id"},
					&cli.StringFlag{Name: "customer", Required: true, Usage: "customer id"},
					&cli.IntFlag{Name: "k", Value: 0, Usage: "result size (0 = default)"},
				},
				Action: runMatch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runSweep(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := postgres.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	swept, err := store.SweepExpired(c.Context)
	if err != nil {
		return err
	}

	fmt.Printf("swept %d expired match cache rows\n", swept)
	return nil
}

func runMatch(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := postgres.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	log := logger.New(logger.Config{Level: "warn"})
	m := metrics.NewMetrics(prometheus.NewRegistry())
	coordinator := usecase.NewCacheCoordinator(nil, store, m, log)

	service := usecase.NewMatchService(store, store, store, coordinator, nil, nil, m, log, usecase.MatchServiceConfig{
		DefaultK:        cfg.Matching.DefaultK,
		DefaultPreviewK: cfg.Matching.DefaultPreviewK,
	})

	response, err := service.GetMatchesForCustomer(c.Context, c.String("vendor"), c.String("customer"), c.Int("k"))
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}
