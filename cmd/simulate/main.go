// Package main runs one portfolio simulation and prints the outcome
// distributions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/simulation"
	"portfolio-lab/internal/storage/clickhouse"
	"portfolio-lab/internal/storage/memory"
	"portfolio-lab/internal/storage/migrations"
	"portfolio-lab/internal/storage/postgres"
)

func main() {
	fundID := flag.String("fund", "fund-1", "Fund identifier")
	trials := flag.Int("trials", 10_000, "Number of Monte Carlo trials")
	companies := flag.Int("companies", 25, "Portfolio companies per trial")
	horizon := flag.Float64("horizon", 10, "Time horizon in years")
	checkSize := flag.Float64("check", 1_000_000, "Initial check size")
	seed := flag.Int64("seed", 0, "Random seed (0 means entropy-seeded)")
	mode := flag.String("mode", "stochastic", "Simulation mode: stochastic or expectation")
	scenario := flag.String("scenario", domain.ScenarioBaseline, "Historical scenario preset name")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for scenario presets (optional)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for archiving results (optional)")
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

	preset, err := loadScenario(ctx, *postgresDSN, *scenario)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
		os.Exit(1)
	}

	cfg := &domain.SimulationConfig{
		FundID:           *fundID,
		NumTrials:        *trials,
		NumCompanies:     *companies,
		TimeHorizonYears: *horizon,
		InitialCheckSize: *checkSize,
		Mode:             domain.SimulationMode(*mode),
		Market:           preset.Parameters,
	}
	if *seed != 0 {
		cfg.RandomSeed = seed
	}

	engine := simulation.New(simulation.Options{Verbose: *verbose})
	result, err := engine.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation error: %v\n", err)
		os.Exit(1)
	}

	printResult(result, preset)

	if *clickhouseDSN != "" {
		if err := archiveResult(ctx, *clickhouseDSN, result); err != nil {
			fmt.Fprintf(os.Stderr, "Archive error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nArchived to ClickHouse.")
	}
}

// loadScenario reads the preset from Postgres when a DSN is given, so
// operator edits to the parameter table win; otherwise it falls back to
// the compiled-in presets.
func loadScenario(ctx context.Context, dsn, name string) (*domain.HistoricalScenario, error) {
	if dsn == "" {
		store := memory.NewScenarioParamStore()
		return store.GetByName(ctx, name)
	}

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return nil, err
	}
	return postgres.NewScenarioParamStore(pool).GetByName(ctx, name)
}

func archiveResult(ctx context.Context, dsn string, result *domain.SimulationResult) error {
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	return clickhouse.NewDistributionStore(conn).InsertRun(ctx, result)
}

func printResult(result *domain.SimulationResult, preset *domain.HistoricalScenario) {
	fmt.Printf("=== Simulation: %s ===\n", result.FundID)
	fmt.Printf("Scenario: %s (%s)  Engine: %s  Trials: %d  Seed: %d\n\n",
		preset.Name, preset.Vintage, result.EngineKind, result.NumTrials, result.Seed)

	fmt.Printf("%-12s %12s %12s %12s %12s %12s %14s %14s\n",
		"metric", "p5", "p25", "p50", "p75", "p95", "mean", "stddev")
	for _, metric := range domain.AllMetricTypes {
		d := result.Distributions[metric]
		p := d.Percentiles
		s := d.Statistics
		fmt.Printf("%-12s %12.4f %12.4f %12.4f %12.4f %12.4f %14.4f %14.4f\n",
			metric, p.P5, p.P25, p.P50, p.P75, p.P95, s.Mean, s.StdDev)
	}
}
