// Package matrixcache memoizes scenario matrix generation behind a
// two-tier cache: an ephemeral TTL tier for fast reads and a durable
// uniquely-keyed store as the source of truth. Concurrent requests for
// the same config race on a unique-constraint insert; exactly one
// becomes the generator and everyone else awaits its terminal status.
package matrixcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/idhash"
	"portfolio-lab/internal/observability"
	"portfolio-lab/internal/storage"
)

// Defaults for cache behavior.
const (
	DefaultTTL          = 15 * time.Minute
	DefaultPollInterval = 50 * time.Millisecond
	DefaultPollTimeout  = 30 * time.Second

	ephemeralPrefix = "matrix:"
)

// ErrGenerationFailed is returned to waiters when the claimant they
// were awaiting marked the row failed.
var ErrGenerationFailed = errors.New("matrixcache: generation failed")

// ErrWaitTimeout is returned when a non-claimant gives up polling for a
// terminal status.
var ErrWaitTimeout = errors.New("matrixcache: timed out awaiting matrix generation")

// ScopeKind selects an invalidation scope.
type ScopeKind string

// Invalidation scope constants.
const (
	ScopeAll    ScopeKind = "all"
	ScopeFund   ScopeKind = "fund"
	ScopeMatrix ScopeKind = "matrix"
)

// Scope names what to invalidate. FundID is required for ScopeFund and
// MatrixKey for ScopeMatrix.
type Scope struct {
	Kind      ScopeKind
	FundID    string
	MatrixKey string
}

// Counts reports how many entries an invalidation touched per tier.
type Counts struct {
	Durable   int
	Ephemeral int
}

// Cache is the two-tier scenario matrix cache.
type Cache struct {
	durable   storage.MatrixStore
	ephemeral storage.EphemeralStore
	generator Generator
	metrics   *observability.Metrics
	verbose   bool

	ttl          time.Duration
	pollInterval time.Duration
	pollTimeout  time.Duration
	clock        func() time.Time
}

// Options for creating a Cache. Durable, Ephemeral, and Generator are
// required.
type Options struct {
	Durable   storage.MatrixStore
	Ephemeral storage.EphemeralStore
	Generator Generator

	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.Metrics
	Verbose bool

	// TTL bounds ephemeral-tier entries. Defaults to DefaultTTL.
	TTL time.Duration

	// PollInterval and PollTimeout shape non-claimant waiting.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// New creates a Cache.
func New(opts Options) *Cache {
	c := &Cache{
		durable:      opts.Durable,
		ephemeral:    opts.Ephemeral,
		generator:    opts.Generator,
		metrics:      opts.Metrics,
		verbose:      opts.Verbose,
		ttl:          opts.TTL,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		clock:        func() time.Time { return time.Now().UTC() },
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = DefaultPollTimeout
	}
	return c
}

// GetOrCompute returns the complete matrix record for a config,
// generating it when absent. Identical configs hash to the same key,
// so concurrent callers dedup onto one durable row.
func (c *Cache) GetOrCompute(ctx context.Context, cfg *domain.MatrixConfig) (*domain.ScenarioMatrixRecord, error) {
	key := idhash.ComputeMatrixKey(*cfg)

	if rec := c.ephemeralLookup(ctx, cfg.FundID, key); rec != nil {
		c.observeCache("ephemeral", "hit")
		return rec, nil
	}
	c.observeCache("ephemeral", "miss")

	created, err := c.durable.InsertPending(ctx, key, cfg.FundID)
	if err != nil {
		return nil, fmt.Errorf("insert pending %s: %w", key, err)
	}
	if created {
		c.observeCache("durable", "miss")
	}

	deadline := c.clock().Add(c.pollTimeout)
	reactivated := false
	for {
		rec, err := c.durable.GetByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}

		switch rec.Status {
		case domain.MatrixStatusComplete:
			if !created {
				c.observeCache("durable", "hit")
			}
			c.ephemeralStore(ctx, cfg.FundID, rec)
			return rec, nil

		case domain.MatrixStatusFailed, domain.MatrixStatusInvalidated:
			// A terminal non-complete row is a miss: one caller flips it
			// back to pending and regenerates. A failure seen after our
			// own reactivation means generation keeps failing; surface
			// it instead of looping.
			if reactivated {
				return nil, fmt.Errorf("%w: key %s is %s", ErrGenerationFailed, key, rec.Status)
			}
			if _, err := c.durable.Reactivate(ctx, key); err != nil {
				return nil, fmt.Errorf("reactivate %s: %w", key, err)
			}
			reactivated = true

		case domain.MatrixStatusPending:
			err := c.durable.ClaimProcessing(ctx, key, c.clock())
			if errors.Is(err, storage.ErrInvalidTransition) {
				break // lost the claim race; keep polling
			}
			if err != nil {
				return nil, fmt.Errorf("claim %s: %w", key, err)
			}
			if err := c.generate(ctx, cfg, key); err != nil {
				return nil, err
			}

		case domain.MatrixStatusProcessing:
			if c.clock().After(deadline) {
				return nil, fmt.Errorf("%w: key %s", ErrWaitTimeout, key)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pollInterval):
			}
		}
	}
}

// Invalidate expires ephemeral entries and soft-marks durable rows for
// a scope. Durable rows are never hard-deleted.
func (c *Cache) Invalidate(ctx context.Context, scope Scope) (Counts, error) {
	var counts Counts
	var err error

	switch scope.Kind {
	case ScopeAll:
		counts.Durable, err = c.durable.InvalidateAll(ctx)
		if err != nil {
			return counts, fmt.Errorf("invalidate all: %w", err)
		}
		counts.Ephemeral, err = c.ephemeral.DeleteByPrefix(ctx, ephemeralPrefix)

	case ScopeFund:
		if scope.FundID == "" {
			return counts, fmt.Errorf("%w: fund scope requires a fund id", storage.ErrInvalidInput)
		}
		counts.Durable, err = c.durable.InvalidateFund(ctx, scope.FundID)
		if err != nil {
			return counts, fmt.Errorf("invalidate fund %s: %w", scope.FundID, err)
		}
		counts.Ephemeral, err = c.ephemeral.DeleteByPrefix(ctx, ephemeralPrefix+scope.FundID+":")

	case ScopeMatrix:
		if scope.MatrixKey == "" {
			return counts, fmt.Errorf("%w: matrix scope requires a matrix key", storage.ErrInvalidInput)
		}
		// The ephemeral key embeds the fund id; resolve it before the
		// durable mark so the fast tier can be cleared too.
		rec, getErr := c.durable.GetByKey(ctx, scope.MatrixKey)
		counts.Durable, err = c.durable.InvalidateKey(ctx, scope.MatrixKey)
		if err != nil {
			return counts, fmt.Errorf("invalidate key %s: %w", scope.MatrixKey, err)
		}
		if getErr == nil {
			if delErr := c.ephemeral.Delete(ctx, c.ephemeralKey(rec.FundID, scope.MatrixKey)); delErr == nil {
				counts.Ephemeral = 1
			}
		}

	default:
		return counts, fmt.Errorf("%w: unknown scope %q", storage.ErrInvalidInput, scope.Kind)
	}
	if err != nil {
		return counts, fmt.Errorf("invalidate ephemeral tier: %w", err)
	}

	if c.metrics != nil {
		c.metrics.MatrixInvalidations.WithLabelValues(string(scope.Kind)).Add(float64(counts.Durable))
	}
	c.log("invalidated scope=%s durable=%d ephemeral=%d", scope.Kind, counts.Durable, counts.Ephemeral)
	return counts, nil
}

// generate runs the generator as the claimant and lands the row in a
// terminal state: a full payload with complete, or failed with none.
func (c *Cache) generate(ctx context.Context, cfg *domain.MatrixConfig, key string) error {
	c.log("generating key=%s fund=%s", key, cfg.FundID)
	start := c.clock()

	payload, err := c.generator.Generate(ctx, cfg)
	if err != nil {
		if failErr := c.durable.Fail(ctx, key); failErr != nil {
			c.log("mark failed key=%s: %v", key, failErr)
		}
		if c.metrics != nil {
			c.metrics.MatrixGenerationErrors.Inc()
		}
		return fmt.Errorf("generate %s: %w", key, err)
	}

	if err := c.durable.Complete(ctx, key, payload); err != nil {
		if failErr := c.durable.Fail(ctx, key); failErr != nil {
			c.log("mark failed key=%s: %v", key, failErr)
		}
		return fmt.Errorf("complete %s: %w", key, err)
	}

	if c.metrics != nil {
		c.metrics.MatrixGenerationDuration.Observe(c.clock().Sub(start).Seconds())
	}
	c.log("generated key=%s in %s", key, c.clock().Sub(start))
	return nil
}

// ephemeralLookup returns a complete cached record, or nil on any miss.
// The fast tier is never trusted for anything but complete records, and
// its errors degrade to misses.
func (c *Cache) ephemeralLookup(ctx context.Context, fundID, key string) *domain.ScenarioMatrixRecord {
	val, ok, err := c.ephemeral.Get(ctx, c.ephemeralKey(fundID, key))
	if err != nil || !ok {
		if err != nil {
			c.log("ephemeral get %s: %v", key, err)
		}
		return nil
	}

	var rec domain.ScenarioMatrixRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		c.log("ephemeral decode %s: %v", key, err)
		return nil
	}
	if rec.Status != domain.MatrixStatusComplete || !rec.Payload.Complete() {
		return nil
	}
	return &rec
}

func (c *Cache) ephemeralStore(ctx context.Context, fundID string, rec *domain.ScenarioMatrixRecord) {
	val, err := json.Marshal(rec)
	if err != nil {
		c.log("ephemeral encode %s: %v", rec.MatrixKey, err)
		return
	}
	if err := c.ephemeral.Set(ctx, c.ephemeralKey(fundID, rec.MatrixKey), val, c.ttl); err != nil {
		c.log("ephemeral set %s: %v", rec.MatrixKey, err)
	}
}

func (c *Cache) ephemeralKey(fundID, key string) string {
	return ephemeralPrefix + fundID + ":" + key
}

func (c *Cache) observeCache(tier, outcome string) {
	if c.metrics != nil {
		c.metrics.CacheRequestsTotal.WithLabelValues(tier, outcome).Inc()
	}
}

func (c *Cache) log(format string, args ...interface{}) {
	if c.verbose {
		log.Printf("[matrixcache] "+format, args...)
	}
}
