// Package main runs the scenario matrix worker: it enqueues generation
// jobs for the configured funds, drains the queue through the two-tier
// cache, and keeps a stale-claim reaper running alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/idhash"
	"portfolio-lab/internal/matrixcache"
	"portfolio-lab/internal/observability"
	"portfolio-lab/internal/simulation"
	"portfolio-lab/internal/storage"
	"portfolio-lab/internal/storage/memory"
	"portfolio-lab/internal/storage/migrations"
	"portfolio-lab/internal/storage/postgres"
)

func main() {
	funds := flag.String("funds", "fund-1", "Comma-separated fund identifiers to precompute")
	scenario := flag.String("scenario", domain.ScenarioBaseline, "Historical scenario preset name")
	scenarioCount := flag.Int("scenario-count", 16, "Scenario rows per matrix")
	buckets := flag.String("buckets", "pre-seed,seed,series-a", "Comma-separated bucket names")
	taxonomy := flag.String("taxonomy", "v1", "Taxonomy version baked into the matrix key")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	staleAfter := flag.Duration("stale-after", matrixcache.DefaultStaleAfter, "Claim staleness threshold for the reaper")
	reapInterval := flag.Duration("reap-interval", matrixcache.DefaultReapInterval, "Reaper sweep interval")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	durable, cleanup, err := openDurableStore(ctx, *postgresDSN, *useMemory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Metrics server error: %v\n", err)
		}
	}()

	engine := simulation.New(simulation.Options{Verbose: *verbose, Metrics: metrics})
	cache := matrixcache.New(matrixcache.Options{
		Durable:   durable,
		Ephemeral: memory.NewEphemeralStore(),
		Generator: matrixcache.NewEngineGenerator(engine),
		Metrics:   metrics,
		Verbose:   *verbose,
	})

	reaper := matrixcache.NewReaper(matrixcache.ReaperOptions{
		Durable:    durable,
		Metrics:    metrics,
		Verbose:    *verbose,
		StaleAfter: *staleAfter,
		Interval:   *reapInterval,
	})
	go func() { _ = reaper.Run(ctx) }()

	preset, found := domain.FindHistoricalScenario(*scenario)
	if !found {
		fmt.Fprintf(os.Stderr, "Unknown scenario preset %q\n", *scenario)
		os.Exit(1)
	}

	// Enqueue one generation job per fund, then drain the queue. The
	// queue carries matrix keys only; configs are resolved through the
	// key index built here.
	queue := memory.NewJobQueue()
	configs := make(map[string]*domain.MatrixConfig)
	for _, fund := range strings.Split(*funds, ",") {
		fund = strings.TrimSpace(fund)
		if fund == "" {
			continue
		}
		cfg := buildMatrixConfig(fund, *taxonomy, *scenarioCount, *buckets, preset.Parameters)
		key := idhash.ComputeMatrixKey(*cfg)
		configs[key] = cfg
		if _, err := queue.Enqueue(ctx, key); err != nil {
			fmt.Fprintf(os.Stderr, "Enqueue error: %v\n", err)
			os.Exit(1)
		}
	}

	processed := 0
	for {
		job, ok, err := queue.Claim(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Claim error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			break
		}

		rec, err := cache.GetOrCompute(ctx, configs[job.MatrixKey])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Generation error for %s: %v\n", job.MatrixKey, err)
			os.Exit(1)
		}
		if err := queue.Complete(ctx, job.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Complete error: %v\n", err)
			os.Exit(1)
		}

		processed++
		fmt.Printf("Matrix %s: fund=%s status=%s buckets=%d optimalScenarios=%d\n",
			shortKey(rec.MatrixKey), rec.FundID, rec.Status,
			rec.Payload.BucketCount, rec.Payload.OptimalScenarioCount)
	}

	fmt.Printf("Processed %d matrices.\n", processed)
}

// openDurableStore picks the durable tier: Postgres with migrations
// applied, or the in-memory fake for local runs.
func openDurableStore(ctx context.Context, dsn string, useMemory bool) (storage.MatrixStore, func(), error) {
	if useMemory || dsn == "" {
		return memory.NewMatrixStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewMatrixStore(pool), pool.Close, nil
}

func buildMatrixConfig(fundID, taxonomy string, scenarioCount int, buckets string, market domain.MarketParameters) *domain.MatrixConfig {
	names := strings.Split(buckets, ",")
	weights := make([]float64, len(names))
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
		// Later buckets sit further from the stress epicenter.
		weights[i] = 1.0 - 0.2*float64(i)
	}

	return &domain.MatrixConfig{
		FundID:             fundID,
		TaxonomyVersion:    taxonomy,
		ScenarioCount:      scenarioCount,
		BucketDefinitions:  names,
		CorrelationWeights: weights,
		Simulation: domain.SimulationConfig{
			FundID:           fundID,
			NumTrials:        1,
			NumCompanies:     25,
			TimeHorizonYears: 10,
			InitialCheckSize: 1_000_000,
			Mode:             domain.ModeExpectation,
			Market:           market,
		},
	}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
