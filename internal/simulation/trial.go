package simulation

import (
	"math/rand"
	"time"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/sampling"
	"portfolio-lab/internal/xirr"
)

// stagesBeforeExit is how many graduations a company needs before it
// can reach an exit event.
const stagesBeforeExit = 2

// flowEpoch anchors the simulated fund timeline. Only day offsets
// matter to XIRR, so any fixed date works; fixing one keeps trial cash
// flows bitwise reproducible.
var flowEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// trialOutcome holds the per-trial value of every tracked metric.
type trialOutcome struct {
	irr        float64
	multiple   float64
	dpi        float64
	tvpi       float64
	totalValue float64
}

func (o trialOutcome) metric(m domain.MetricType) float64 {
	switch m {
	case domain.MetricIRR:
		return o.irr
	case domain.MetricMultiple:
		return o.multiple
	case domain.MetricDPI:
		return o.dpi
	case domain.MetricTVPI:
		return o.tvpi
	default:
		return o.totalValue
	}
}

// periodDate converts a period index into a calendar date on the fund
// timeline.
func periodDate(period int, holdPeriodYears float64) time.Time {
	hours := float64(period) * holdPeriodYears * 365.0 * 24.0
	return flowEpoch.Add(time.Duration(hours * float64(time.Hour)))
}

// runTrial simulates one fund outcome: every company is funded at t0,
// then advances stage-by-stage — failing, graduating, or remaining per
// the configured transition probabilities. A company that graduates
// stagesBeforeExit times exits at a Pareto-sampled multiple; companies
// still alive at the horizon are held at cost as residual value.
func runTrial(cfg *domain.SimulationConfig, sampler *sampling.ExitSampler, rng *rand.Rand) trialOutcome {
	m := cfg.Market
	periods := int(cfg.TimeHorizonYears / m.HoldPeriodYears)

	outflows := make([]float64, periods+1)
	inflows := make([]float64, periods+1)
	residual := 0.0

	for c := 0; c < cfg.NumCompanies; c++ {
		invested := cfg.InitialCheckSize
		outflows[0] += invested
		graduations := 0
		alive := true

		for p := 1; p <= periods && alive; p++ {
			u := rng.Float64()
			switch {
			case u < m.FailureRate:
				// Total write-off.
				alive = false

			case u < m.FailureRate+m.GraduationRate:
				graduations++
				if graduations >= stagesBeforeExit {
					inflows[p] += invested * sampler.Sample(rng)
					alive = false
				} else if rng.Float64() < m.FollowOnProbability {
					followOn := cfg.InitialCheckSize * m.FollowOnFraction
					outflows[p] += followOn
					invested += followOn
				}

			default:
				// Remains in stage; re-drawn next period.
			}
		}

		if alive {
			residual += invested
		}
	}

	return computeOutcome(cfg, outflows, inflows, residual)
}

// computeOutcome turns aggregated period flows into fund metrics.
func computeOutcome(cfg *domain.SimulationConfig, outflows, inflows []float64, residual float64) trialOutcome {
	paidIn := 0.0
	for _, v := range outflows {
		paidIn += v
	}
	distributed := 0.0
	for _, v := range inflows {
		distributed += v
	}
	totalValue := distributed + residual

	flows := make([]domain.CashFlow, 0, len(outflows)+len(inflows)+1)
	hold := cfg.Market.HoldPeriodYears
	for p, v := range outflows {
		if v > 0 {
			flows = append(flows, domain.CashFlow{Date: periodDate(p, hold), Amount: -v})
		}
	}
	for p, v := range inflows {
		if v > 0 {
			flows = append(flows, domain.CashFlow{Date: periodDate(p, hold), Amount: v})
		}
	}
	if residual > 0 {
		// Unrealized value enters the return as a terminal mark at the
		// horizon, the standard interim-IRR convention.
		horizon := flowEpoch.Add(time.Duration(cfg.TimeHorizonYears * 365.0 * 24.0 * float64(time.Hour)))
		flows = append(flows, domain.CashFlow{Date: horizon, Amount: residual})
	}

	// A trial with no positive flow (total early write-off) has no
	// solvable XIRR; it is imputed at -100% rather than excluded so
	// trial weighting stays exact.
	irr := -1.0
	if rate, err := xirr.Solve(flows); err == nil {
		irr = rate
	}

	return trialOutcome{
		irr:        irr,
		multiple:   totalValue / paidIn,
		dpi:        distributed / paidIn,
		tvpi:       totalValue / paidIn,
		totalValue: totalValue,
	}
}
