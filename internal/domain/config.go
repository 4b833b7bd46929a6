package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidConfig is the sentinel wrapped by every config validation
// failure.
var ErrInvalidConfig = errors.New("invalid simulation config")

// SimulationMode selects the engine family.
type SimulationMode string

// Simulation mode constants.
const (
	ModeExpectation SimulationMode = "expectation"
	ModeStochastic  SimulationMode = "stochastic"
)

// MarketParameters drive the per-company outcome model for one scenario.
type MarketParameters struct {
	// ExitMultiplierMedian is the median exit multiple for companies
	// that reach an exit.
	ExitMultiplierMedian float64

	// ExitMultiplierP90 is the 90th-percentile exit multiple. Together
	// with the median it calibrates the power-law tail.
	ExitMultiplierP90 float64

	// FailureRate is the per-stage probability of a total write-off.
	FailureRate float64

	// GraduationRate is the per-stage probability of advancing toward
	// exit. Remaining mass (1 - failure - graduation) stays in stage.
	GraduationRate float64

	// FollowOnProbability is the chance a follow-on check is deployed
	// when a company graduates a stage.
	FollowOnProbability float64

	// FollowOnFraction sizes a follow-on check relative to the initial
	// check.
	FollowOnFraction float64

	// HoldPeriodYears is the expected hold per stage.
	HoldPeriodYears float64
}

// SimulationConfig describes one simulation request. Immutable once a
// run starts.
type SimulationConfig struct {
	FundID           string
	NumTrials        int
	NumCompanies     int
	TimeHorizonYears float64
	InitialCheckSize float64
	RandomSeed       *int64 // nil means non-reproducible entropy seed
	Mode             SimulationMode
	Market           MarketParameters
}

// Validate rejects malformed configs before any trial runs. All
// violations are collected so a caller sees the full picture at once.
func (c *SimulationConfig) Validate() error {
	var problems []string

	if c.FundID == "" {
		problems = append(problems, "fundId is required")
	}
	if c.NumTrials < 1 {
		problems = append(problems, "numTrials must be >= 1")
	}
	if c.NumCompanies < 1 {
		problems = append(problems, "numCompanies must be >= 1")
	}
	if c.TimeHorizonYears <= 0 {
		problems = append(problems, "timeHorizonYears must be > 0")
	}
	if c.InitialCheckSize <= 0 {
		problems = append(problems, "initialCheckSize must be > 0")
	}
	if c.Mode != ModeExpectation && c.Mode != ModeStochastic {
		problems = append(problems, fmt.Sprintf("unknown mode %q", c.Mode))
	}

	m := c.Market
	if m.ExitMultiplierMedian <= 0 {
		problems = append(problems, "exitMultiplierMedian must be > 0")
	}
	if m.ExitMultiplierP90 <= m.ExitMultiplierMedian {
		problems = append(problems, "exitMultiplierP90 must exceed exitMultiplierMedian")
	}
	if m.FailureRate < 0 || m.FailureRate > 1 {
		problems = append(problems, "failureRate must be in [0,1]")
	}
	if m.GraduationRate < 0 || m.GraduationRate > 1 {
		problems = append(problems, "graduationRate must be in [0,1]")
	}
	if m.FailureRate+m.GraduationRate > 1 {
		problems = append(problems, "failureRate + graduationRate must not exceed 1")
	}
	if m.FollowOnProbability < 0 || m.FollowOnProbability > 1 {
		problems = append(problems, "followOnProbability must be in [0,1]")
	}
	if m.FollowOnFraction < 0 {
		problems = append(problems, "followOnFraction must be >= 0")
	}
	if m.HoldPeriodYears <= 0 {
		problems = append(problems, "holdPeriodYears must be > 0")
	}
	for _, v := range []float64{
		m.ExitMultiplierMedian, m.ExitMultiplierP90, m.FailureRate,
		m.GraduationRate, m.FollowOnProbability, m.FollowOnFraction,
		m.HoldPeriodYears, c.TimeHorizonYears, c.InitialCheckSize,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, "market parameters must be finite")
			break
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
