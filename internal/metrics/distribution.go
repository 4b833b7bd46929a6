// Package metrics builds and validates outcome distributions over
// simulated fund metrics.
package metrics

import (
	"math"
	"sort"

	"portfolio-lab/internal/domain"
)

// BuildDistribution computes an exact distribution from materialized
// trial outcomes. Used by the expectation and orchestrated engines;
// large-N runs go through Accumulator instead.
func BuildDistribution(metric domain.MetricType, samples []float64) *domain.MetricDistribution {
	n := len(samples)
	if n == 0 {
		return &domain.MetricDistribution{MetricType: metric}
	}

	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	mean := computeMean(samples)

	return &domain.MetricDistribution{
		MetricType: metric,
		Percentiles: domain.Percentiles{
			P5:  computePercentile(sorted, 0.05),
			P25: computePercentile(sorted, 0.25),
			P50: computePercentile(sorted, 0.50),
			P75: computePercentile(sorted, 0.75),
			P95: computePercentile(sorted, 0.95),
		},
		Statistics: domain.Statistics{
			Mean:   mean,
			StdDev: computeStddev(samples, mean),
			Min:    sorted[0],
			Max:    sorted[n-1],
			Count:  n,
		},
	}
}

// computeMean calculates arithmetic mean of samples.
func computeMean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(samples []float64, mean float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, s := range samples {
		diff := s - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC. p is in [0,1].
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
