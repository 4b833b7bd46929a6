package metrics

import (
	"fmt"
	"strings"

	"portfolio-lab/internal/domain"
)

// ValidationError aggregates every invariant a distribution violates.
// Checks are not fail-fast so callers see the full set of problems from
// a single generator bug at once.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("distribution validation failed: %s", strings.Join(e.Violations, "; "))
}

// Validate checks a single distribution against its invariants:
// percentile monotonicity (p5<=p25<=p50<=p75<=p95), min<=max, and
// non-negativity for ratio/total metrics. This gate runs on every
// distribution before it is returned or persisted; it is the system's
// sole defense against silent generator bugs.
func Validate(d *domain.MetricDistribution) error {
	violations := collect(d)
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// ValidateAll checks every distribution of a result, aggregating
// violations across metrics into one error.
func ValidateAll(dists map[domain.MetricType]*domain.MetricDistribution) error {
	var violations []string
	for _, metric := range domain.AllMetricTypes {
		d, ok := dists[metric]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s: distribution missing", metric))
			continue
		}
		violations = append(violations, collect(d)...)
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func collect(d *domain.MetricDistribution) []string {
	var violations []string
	p := d.Percentiles
	s := d.Statistics

	type pair struct {
		lo, hi   float64
		loN, hiN string
	}
	for _, pr := range []pair{
		{p.P5, p.P25, "p5", "p25"},
		{p.P25, p.P50, "p25", "p50"},
		{p.P50, p.P75, "p50", "p75"},
		{p.P75, p.P95, "p75", "p95"},
	} {
		if pr.lo > pr.hi {
			violations = append(violations, fmt.Sprintf(
				"%s: percentile monotonicity violated: %s (%g) > %s (%g)",
				d.MetricType, pr.loN, pr.lo, pr.hiN, pr.hi))
		}
	}

	if s.Min > s.Max {
		violations = append(violations, fmt.Sprintf(
			"%s: min (%g) > max (%g)", d.MetricType, s.Min, s.Max))
	}

	if d.MetricType.NonNegative() && s.Min < 0 {
		violations = append(violations, fmt.Sprintf(
			"%s: negative value (min %g) for non-negative metric", d.MetricType, s.Min))
	}

	return violations
}
