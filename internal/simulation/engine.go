// Package simulation runs probabilistic portfolio models. A run is
// routed to one of three engines: a closed-form expectation engine, an
// orchestrated engine that materializes every trial for exact
// percentiles, or a streaming engine that folds trials into
// constant-memory accumulators for large trial counts.
package simulation

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/metrics"
	"portfolio-lab/internal/observability"
	"portfolio-lab/internal/sampling"
)

// ErrInvalidConfig reports a config rejected before any trial ran.
var ErrInvalidConfig = domain.ErrInvalidConfig

// DefaultBatchSize is the number of trials per execution batch. Batch
// b of a run draws from its own RNG seeded seed+b, so the trial set is
// identical across engines and across re-runs of the same seed.
const DefaultBatchSize = 1000

// Engine executes simulation runs.
type Engine struct {
	verbose       bool
	metrics       *observability.Metrics
	batchSize     int
	maxConcurrent int
}

// Options for creating an Engine.
type Options struct {
	Verbose bool

	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.Metrics

	// BatchSize overrides DefaultBatchSize. Changing it changes which
	// RNG stream each trial draws from, so seeded results are only
	// reproducible across runs with the same batch size.
	BatchSize int

	// MaxConcurrentBatches bounds streaming-engine parallelism.
	// Defaults to GOMAXPROCS.
	MaxConcurrentBatches int
}

// New creates an Engine.
func New(opts Options) *Engine {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxConcurrent := opts.MaxConcurrentBatches
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		verbose:       opts.Verbose,
		metrics:       opts.Metrics,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
	}
}

// Run validates the config, routes it to an engine, and returns the
// validated result. Any distribution that fails the validator gate is
// never returned; the run errors instead.
func (e *Engine) Run(ctx context.Context, cfg *domain.SimulationConfig) (*domain.SimulationResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sampler, err := sampling.NewExitSampler(cfg.Market.ExitMultiplierMedian, cfg.Market.ExitMultiplierP90)
	if err != nil {
		return nil, err
	}

	// A run without an explicit seed still gets a recorded one, so any
	// result can be reproduced after the fact.
	seed := time.Now().UnixNano()
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	}

	kind := SelectEngine(cfg.NumTrials, cfg.Mode)
	e.log("run fund=%s engine=%s trials=%d seed=%d", cfg.FundID, kind, cfg.NumTrials, seed)

	start := time.Now()
	var dists map[domain.MetricType]*domain.MetricDistribution
	switch kind {
	case EngineExpectation:
		dists = runExpectation(cfg, sampler)
	case EngineOrchestrated:
		dists, err = e.runOrchestrated(ctx, cfg, sampler, seed)
	default:
		dists, err = e.runStreaming(ctx, cfg, sampler, seed)
	}
	if err != nil {
		e.observeRun(kind, "error", time.Since(start))
		return nil, fmt.Errorf("%s engine: %w", kind, err)
	}

	if err := metrics.ValidateAll(dists); err != nil {
		if e.metrics != nil {
			e.metrics.ValidationFailures.Inc()
		}
		e.observeRun(kind, "invalid", time.Since(start))
		return nil, fmt.Errorf("run produced invalid distributions: %w", err)
	}

	e.observeRun(kind, "ok", time.Since(start))
	if e.metrics != nil && kind != EngineExpectation {
		e.metrics.TrialsSimulated.Add(float64(cfg.NumTrials))
	}
	e.log("run fund=%s engine=%s done in %s", cfg.FundID, kind, time.Since(start))

	return &domain.SimulationResult{
		FundID:        cfg.FundID,
		Mode:          cfg.Mode,
		EngineKind:    string(kind),
		NumTrials:     cfg.NumTrials,
		Seed:          seed,
		Distributions: dists,
	}, nil
}

// runOrchestrated materializes every trial outcome, then computes exact
// sorted-sample percentiles per metric.
func (e *Engine) runOrchestrated(ctx context.Context, cfg *domain.SimulationConfig, sampler *sampling.ExitSampler, seed int64) (map[domain.MetricType]*domain.MetricDistribution, error) {
	outcomes := make([]trialOutcome, 0, cfg.NumTrials)
	for b := 0; b*e.batchSize < cfg.NumTrials; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, e.runBatch(cfg, sampler, seed, b)...)
	}

	dists := make(map[domain.MetricType]*domain.MetricDistribution, len(domain.AllMetricTypes))
	samples := make([]float64, len(outcomes))
	for _, metric := range domain.AllMetricTypes {
		for i, o := range outcomes {
			samples[i] = o.metric(metric)
		}
		dists[metric] = metrics.BuildDistribution(metric, samples)
	}
	return dists, nil
}

// runStreaming executes batches in bounded-concurrency waves and folds
// each wave into per-metric accumulators in batch-index order. Peak
// memory is one wave of outcomes regardless of trial count, and the
// fixed fold order keeps seeded runs reproducible.
func (e *Engine) runStreaming(ctx context.Context, cfg *domain.SimulationConfig, sampler *sampling.ExitSampler, seed int64) (map[domain.MetricType]*domain.MetricDistribution, error) {
	accs := make(map[domain.MetricType]*metrics.Accumulator, len(domain.AllMetricTypes))
	for _, metric := range domain.AllMetricTypes {
		accs[metric] = metrics.NewAccumulator(metric)
	}

	numBatches := (cfg.NumTrials + e.batchSize - 1) / e.batchSize
	for wave := 0; wave < numBatches; wave += e.maxConcurrent {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := wave + e.maxConcurrent
		if end > numBatches {
			end = numBatches
		}

		results := make([][]trialOutcome, end-wave)
		var wg sync.WaitGroup
		wg.Add(end - wave)
		for b := wave; b < end; b++ {
			go func(b int) {
				defer wg.Done()
				results[b-wave] = e.runBatch(cfg, sampler, seed, b)
			}(b)
		}
		wg.Wait()

		for _, batch := range results {
			for _, o := range batch {
				for _, metric := range domain.AllMetricTypes {
					accs[metric].Observe(o.metric(metric))
				}
			}
		}
	}

	dists := make(map[domain.MetricType]*domain.MetricDistribution, len(accs))
	for metric, acc := range accs {
		dists[metric] = acc.Distribution()
	}
	return dists, nil
}

// runBatch runs one batch of trials against its own RNG stream.
func (e *Engine) runBatch(cfg *domain.SimulationConfig, sampler *sampling.ExitSampler, seed int64, batch int) []trialOutcome {
	lo := batch * e.batchSize
	hi := lo + e.batchSize
	if hi > cfg.NumTrials {
		hi = cfg.NumTrials
	}

	rng := rand.New(rand.NewSource(seed + int64(batch)))
	outcomes := make([]trialOutcome, 0, hi-lo)
	for i := lo; i < hi; i++ {
		outcomes = append(outcomes, runTrial(cfg, sampler, rng))
	}
	return outcomes
}

func (e *Engine) observeRun(kind EngineKind, status string, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.SimulationRunsTotal.WithLabelValues(string(kind), status).Inc()
	if status == "ok" {
		e.metrics.SimulationDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

func (e *Engine) log(format string, args ...interface{}) {
	if e.verbose {
		log.Printf("[simulation] "+format, args...)
	}
}
