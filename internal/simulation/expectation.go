package simulation

import (
	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/sampling"
)

// exitMeanCapFactor bounds the exit multiple used in expectation-mode
// accounting. A Pareto tail with alpha <= 1 has an infinite mean, so
// the expected exit is always taken over min(X, factor*xmin).
const exitMeanCapFactor = 1000.0

// runExpectation computes probability-weighted fund metrics with no
// randomness: company state mass flows through the same stage machine
// runTrial walks, but as expectations instead of draws. Every metric
// comes out as a point value.
func runExpectation(cfg *domain.SimulationConfig, sampler *sampling.ExitSampler) map[domain.MetricType]*domain.MetricDistribution {
	m := cfg.Market
	periods := int(cfg.TimeHorizonYears / m.HoldPeriodYears)
	exitMean := sampler.TruncatedMean(exitMeanCapFactor * sampler.Xmin())

	// mass[g] is the probability a company sits at g graduations and is
	// still alive. invested[g] is its expected cumulative check size,
	// which grows by the expected follow-on on each graduation.
	mass := make([]float64, stagesBeforeExit)
	invested := make([]float64, stagesBeforeExit)
	mass[0] = 1.0
	for g := range invested {
		invested[g] = cfg.InitialCheckSize * (1 + float64(g)*m.FollowOnProbability*m.FollowOnFraction)
	}

	outflows := make([]float64, periods+1)
	inflows := make([]float64, periods+1)
	outflows[0] = cfg.InitialCheckSize

	pRemain := 1 - m.FailureRate - m.GraduationRate
	for p := 1; p <= periods; p++ {
		next := make([]float64, stagesBeforeExit)
		for g, w := range mass {
			if w == 0 {
				continue
			}
			grad := w * m.GraduationRate
			if g+1 >= stagesBeforeExit {
				inflows[p] += grad * invested[g] * exitMean
			} else {
				next[g+1] += grad
				outflows[p] += grad * m.FollowOnProbability * cfg.InitialCheckSize * m.FollowOnFraction
			}
			next[g] += w * pRemain
		}
		mass = next
	}

	residual := 0.0
	for g, w := range mass {
		residual += w * invested[g]
	}

	// Per-company expectations scale linearly to the portfolio.
	n := float64(cfg.NumCompanies)
	for p := range outflows {
		outflows[p] *= n
	}
	for p := range inflows {
		inflows[p] *= n
	}
	residual *= n

	outcome := computeOutcome(cfg, outflows, inflows, residual)

	dists := make(map[domain.MetricType]*domain.MetricDistribution, len(domain.AllMetricTypes))
	for _, metric := range domain.AllMetricTypes {
		dists[metric] = pointDistribution(metric, outcome.metric(metric))
	}
	return dists
}

// pointDistribution wraps a deterministic value in the distribution
// shape the stochastic engines produce, so downstream consumers never
// branch on mode.
func pointDistribution(metric domain.MetricType, v float64) *domain.MetricDistribution {
	return &domain.MetricDistribution{
		MetricType: metric,
		Percentiles: domain.Percentiles{
			P5: v, P25: v, P50: v, P75: v, P95: v,
		},
		Statistics: domain.Statistics{
			Mean:   v,
			StdDev: 0,
			Min:    v,
			Max:    v,
			Count:  1,
		},
	}
}
