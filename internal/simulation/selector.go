package simulation

import "portfolio-lab/internal/domain"

// EngineKind identifies which execution engine a run is routed to.
type EngineKind string

// Engine kind constants.
const (
	// EngineExpectation computes probability-weighted closed-form
	// metrics with no RNG.
	EngineExpectation EngineKind = "expectation"

	// EngineOrchestrated materializes every trial outcome and computes
	// exact percentiles. Used below the streaming threshold.
	EngineOrchestrated EngineKind = "orchestrated"

	// EngineStreaming processes trials in bounded concurrent batches
	// folded into streaming accumulators. Peak memory is independent
	// of trial count.
	EngineStreaming EngineKind = "streaming"
)

// StreamingThreshold is the trial count at which stochastic runs route
// to the streaming engine.
const StreamingThreshold = 10_000

// SelectEngine routes a run to an engine. Pure function of its inputs
// so routing is testable without executing any engine.
func SelectEngine(numTrials int, mode domain.SimulationMode) EngineKind {
	if mode == domain.ModeExpectation {
		return EngineExpectation
	}
	if numTrials >= StreamingThreshold {
		return EngineStreaming
	}
	return EngineOrchestrated
}
