package matrixcache

import (
	"context"
	"fmt"
	"log"
	"time"

	"portfolio-lab/internal/observability"
	"portfolio-lab/internal/storage"
)

// Reaper defaults.
const (
	DefaultStaleAfter   = 5 * time.Minute
	DefaultReapInterval = time.Minute
)

// Reaper reverts processing rows whose claimant went quiet back to
// pending, so a crashed generator never wedges a key forever. The
// underlying update is status-conditional: two racing reapers cannot
// both reclaim the same row.
type Reaper struct {
	durable    storage.MatrixStore
	metrics    *observability.Metrics
	verbose    bool
	staleAfter time.Duration
	interval   time.Duration
	clock      func() time.Time
}

// ReaperOptions for creating a Reaper. Durable is required.
type ReaperOptions struct {
	Durable storage.MatrixStore
	Metrics *observability.Metrics
	Verbose bool

	// StaleAfter is how long a claim may hold processing before it is
	// considered abandoned. Defaults to DefaultStaleAfter.
	StaleAfter time.Duration

	// Interval between sweeps when running the loop. Defaults to
	// DefaultReapInterval.
	Interval time.Duration
}

// NewReaper creates a Reaper.
func NewReaper(opts ReaperOptions) *Reaper {
	r := &Reaper{
		durable:    opts.Durable,
		metrics:    opts.Metrics,
		verbose:    opts.Verbose,
		staleAfter: opts.StaleAfter,
		interval:   opts.Interval,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	if r.staleAfter <= 0 {
		r.staleAfter = DefaultStaleAfter
	}
	if r.interval <= 0 {
		r.interval = DefaultReapInterval
	}
	return r
}

// ReapOnce performs one sweep, returning how many rows it reclaimed.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	cutoff := r.clock().Add(-r.staleAfter)
	reclaimed, err := r.durable.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale claims: %w", err)
	}

	if reclaimed > 0 {
		r.log("reclaimed %d stale claims (cutoff %s)", reclaimed, cutoff.Format(time.RFC3339))
		if r.metrics != nil {
			r.metrics.ReclaimedClaims.Add(float64(reclaimed))
		}
	}
	return reclaimed, nil
}

// Run sweeps on the configured interval until the context is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				r.log("sweep failed: %v", err)
			}
		}
	}
}

func (r *Reaper) log(format string, args ...interface{}) {
	if r.verbose {
		log.Printf("[reaper] "+format, args...)
	}
}
