// Package xirr computes annualized internal rates of return for cash
// flows on irregular dates. Newton-Raphson is the primary method; on
// divergence it falls back to Brent's method, which handles extreme
// short-horizon multiples (e.g. 10x in 6 months) where Newton alone
// oscillates or shoots past the root.
package xirr

import (
	"errors"
	"math"

	"portfolio-lab/internal/domain"
)

// Solver errors.
var (
	// ErrInvalidCashFlowSign is returned when the series fails
	// well-posedness (too few flows, no sign change, identical dates).
	ErrInvalidCashFlowSign = errors.New("xirr: cash flow series is not well-posed")

	// ErrRootNotBracketed is returned when NPV has the same sign at
	// both ends of the fallback bracket, so no root exists inside it.
	ErrRootNotBracketed = errors.New("xirr: npv root not bracketed")
)

const (
	daysPerYear = 365.0

	newtonGuess   = 0.1
	newtonMaxIter = 100
	npvTolerance  = 1e-10

	brentLower    = -0.9999
	brentUpper    = 10.0
	brentUpperCap = 1e6
	brentMaxIter  = 200
)

// Solve returns the annualized rate r such that NPV(r) ≈ 0 for the
// given series. Flows are discounted as amount / (1+r)^(days/365) from
// the earliest date.
func Solve(flows []domain.CashFlow) (float64, error) {
	if err := domain.ValidateCashFlows(flows); err != nil {
		return 0, ErrInvalidCashFlowSign
	}

	sorted := domain.SortCashFlows(flows)
	t0 := sorted[0].Date

	// Precompute year offsets once; both solvers evaluate NPV many times.
	years := make([]float64, len(sorted))
	amounts := make([]float64, len(sorted))
	for i, f := range sorted {
		years[i] = f.Date.Sub(t0).Hours() / 24.0 / daysPerYear
		amounts[i] = f.Amount
	}

	if rate, ok := newton(amounts, years); ok {
		return rate, nil
	}
	return brent(amounts, years)
}

// npv evaluates Σ amount_i / (1+rate)^years_i.
func npv(amounts, years []float64, rate float64) float64 {
	total := 0.0
	for i, a := range amounts {
		total += a / math.Pow(1.0+rate, years[i])
	}
	return total
}

// npvDerivative evaluates d(NPV)/d(rate).
func npvDerivative(amounts, years []float64, rate float64) float64 {
	total := 0.0
	for i, a := range amounts {
		if years[i] == 0 {
			continue
		}
		total -= a * years[i] / math.Pow(1.0+rate, years[i]+1.0)
	}
	return total
}

// newton runs Newton-Raphson from a fixed initial guess. Returns
// (rate, true) on convergence; (0, false) when the iteration diverges,
// oscillates, leaves the valid domain, or produces non-finite values.
func newton(amounts, years []float64) (float64, bool) {
	rate := newtonGuess

	for i := 0; i < newtonMaxIter; i++ {
		if rate <= -1.0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return 0, false
		}

		value := npv(amounts, years, rate)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, false
		}
		if math.Abs(value) < npvTolerance {
			return rate, true
		}

		deriv := npvDerivative(amounts, years, rate)
		if deriv == 0 || math.IsNaN(deriv) || math.IsInf(deriv, 0) {
			return 0, false
		}

		rate -= value / deriv
	}
	return 0, false
}

// brent finds a root of NPV over [brentLower, brentUpper] combining
// bisection, secant, and inverse-quadratic interpolation.
func brent(amounts, years []float64) (float64, error) {
	a := brentLower
	b := brentUpper
	fa := npv(amounts, years, a)
	fb := npv(amounts, years, b)

	// Extreme short-horizon multiples put the root above the default
	// upper bound; expand geometrically before giving up.
	for fa*fb > 0 && b < brentUpperCap {
		b *= 2
		fb = npv(amounts, years, b)
	}
	if fa*fb > 0 {
		return 0, ErrRootNotBracketed
	}
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}

	// Ensure |f(b)| <= |f(a)| so b tracks the best estimate.
	if math.Abs(fa) < math.Abs(fb) {
		a, b = b, a
		fa, fb = fb, fa
	}

	c := a
	fc := fa
	d := b - a
	bisected := true

	for i := 0; i < brentMaxIter; i++ {
		if math.Abs(fb) < npvTolerance {
			return b, nil
		}

		var s float64
		if fa != fc && fb != fc {
			// Inverse quadratic interpolation.
			s = a*fb*fc/((fa-fb)*(fa-fc)) +
				b*fa*fc/((fb-fa)*(fb-fc)) +
				c*fa*fb/((fc-fa)*(fc-fb))
		} else {
			// Secant step.
			s = b - fb*(b-a)/(fb-fa)
		}

		// Fall back to bisection when the interpolated point is
		// unusable or convergence is too slow.
		lo := (3*a + b) / 4
		hi := b
		if lo > hi {
			lo, hi = hi, lo
		}
		useBisection := s < lo || s > hi ||
			(bisected && math.Abs(s-b) >= math.Abs(b-c)/2) ||
			(!bisected && math.Abs(s-b) >= math.Abs(c-d)/2)
		if useBisection {
			s = (a + b) / 2
			bisected = true
		} else {
			bisected = false
		}

		fs := npv(amounts, years, s)
		d = c
		c = b
		fc = fb

		if fa*fs < 0 {
			b = s
			fb = fs
		} else {
			a = s
			fa = fs
		}

		if math.Abs(fa) < math.Abs(fb) {
			a, b = b, a
			fa, fb = fb, fa
		}

		if math.Abs(b-a) < 1e-14 {
			return b, nil
		}
	}

	return b, nil
}
