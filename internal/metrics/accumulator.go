package metrics

import (
	"math"

	"github.com/influxdata/tdigest"

	"portfolio-lab/internal/domain"
)

// Accumulator folds trial outcomes for one metric in a single pass with
// bounded memory: running Welford moments and min/max plus a t-digest
// sketch for percentiles. Sum, min, and max merge exactly regardless of
// order; the sketch is order-sensitive only up to its approximation
// error, so the streaming engine feeds batches in a fixed order to keep
// seeded runs reproducible.
//
// Not safe for concurrent use; the streaming engine owns one per metric
// behind a single merger goroutine.
type Accumulator struct {
	metric domain.MetricType
	digest *tdigest.TDigest

	count int
	mean  float64
	m2    float64
	min   float64
	max   float64
}

// NewAccumulator creates an empty accumulator for one metric.
func NewAccumulator(metric domain.MetricType) *Accumulator {
	return &Accumulator{
		metric: metric,
		digest: tdigest.NewWithCompression(200),
		min:    math.Inf(1),
		max:    math.Inf(-1),
	}
}

// Observe folds one trial outcome into the accumulator.
func (a *Accumulator) Observe(v float64) {
	a.count++
	delta := v - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (v - a.mean)

	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}

	a.digest.Add(v, 1)
}

// Count returns the number of observed outcomes.
func (a *Accumulator) Count() int { return a.count }

// Distribution materializes the accumulated distribution.
func (a *Accumulator) Distribution() *domain.MetricDistribution {
	if a.count == 0 {
		return &domain.MetricDistribution{MetricType: a.metric}
	}

	stddev := 0.0
	if a.count > 1 {
		stddev = math.Sqrt(a.m2 / float64(a.count-1))
	}

	// The sketch can drift marginally outside observed bounds at the
	// extremes; clamp so Min/Max invariants hold exactly.
	q := func(p float64) float64 {
		v := a.digest.Quantile(p)
		if v < a.min {
			return a.min
		}
		if v > a.max {
			return a.max
		}
		return v
	}

	return &domain.MetricDistribution{
		MetricType: a.metric,
		Percentiles: domain.Percentiles{
			P5:  q(0.05),
			P25: q(0.25),
			P50: q(0.50),
			P75: q(0.75),
			P95: q(0.95),
		},
		Statistics: domain.Statistics{
			Mean:   a.mean,
			StdDev: stddev,
			Min:    a.min,
			Max:    a.max,
			Count:  a.count,
		},
	}
}
