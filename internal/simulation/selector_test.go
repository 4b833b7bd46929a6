package simulation

import (
	"testing"

	"portfolio-lab/internal/domain"
)

func TestSelectEngine(t *testing.T) {
	cases := []struct {
		name      string
		numTrials int
		mode      domain.SimulationMode
		want      EngineKind
	}{
		{"expectation ignores trial count", 1_000_000, domain.ModeExpectation, EngineExpectation},
		{"small stochastic", 100, domain.ModeStochastic, EngineOrchestrated},
		{"just below threshold", StreamingThreshold - 1, domain.ModeStochastic, EngineOrchestrated},
		{"at threshold", StreamingThreshold, domain.ModeStochastic, EngineStreaming},
		{"above threshold", 1_000_000, domain.ModeStochastic, EngineStreaming},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectEngine(tc.numTrials, tc.mode); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
