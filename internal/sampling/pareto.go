// Package sampling provides heavy-tailed draws for simulated exit
// multiples. Venture exits are power-law distributed: most exits
// cluster near the median while rare outliers dominate fund returns,
// so the sampler is calibrated directly to the two points planners
// reason about, the median and the P90.
package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalidCalibration is returned when (median, p90) cannot define a
// Pareto tail: both must be positive and p90 must exceed the median.
var ErrInvalidCalibration = errors.New("sampling: p90 must exceed median and both must be positive")

// ExitSampler draws Pareto-distributed exit multiples satisfying
// P(X >= median) = 0.5 and P(X >= p90) = 0.1.
type ExitSampler struct {
	alpha float64 // tail shape
	xmin  float64 // distribution minimum
}

// NewExitSampler calibrates a sampler from the target median and p90.
// Survival function P(X >= x) = (xmin/x)^alpha gives
// alpha = ln(5) / ln(p90/median) and xmin = median / 2^(1/alpha).
func NewExitSampler(median, p90 float64) (*ExitSampler, error) {
	if median <= 0 || p90 <= median {
		return nil, fmt.Errorf("%w: median=%g p90=%g", ErrInvalidCalibration, median, p90)
	}

	alpha := math.Log(5) / math.Log(p90/median)
	xmin := median / math.Pow(2, 1/alpha)

	return &ExitSampler{alpha: alpha, xmin: xmin}, nil
}

// Alpha returns the calibrated tail shape.
func (s *ExitSampler) Alpha() float64 { return s.alpha }

// Xmin returns the calibrated distribution minimum.
func (s *ExitSampler) Xmin() float64 { return s.xmin }

// TruncatedMean returns E[min(X, cap)]. The plain Pareto mean is
// infinite when alpha <= 1 (p90 >= 5x the median), so expectation-mode
// accounting always works with a capped tail.
func (s *ExitSampler) TruncatedMean(limit float64) float64 {
	if limit <= s.xmin {
		return s.xmin
	}
	if s.alpha == 1 {
		return s.xmin * (1 + math.Log(limit/s.xmin))
	}

	a := s.alpha
	body := a / (a - 1) * (s.xmin - math.Pow(s.xmin, a)*math.Pow(limit, 1-a))
	tail := limit * math.Pow(s.xmin/limit, a)
	return body + tail
}

// Sample draws one exit multiple via inverse CDF: x = xmin/(1-u)^(1/alpha).
// The rng is injected so callers control reproducibility.
func (s *ExitSampler) Sample(rng *rand.Rand) float64 {
	u := rng.Float64()
	if u >= 1 {
		u = math.Nextafter(1, 0) // keep the denominator strictly positive
	}

	x := s.xmin / math.Pow(1-u, 1/s.alpha)
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return s.xmin
	}
	return x
}
