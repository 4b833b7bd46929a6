package matrixcache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/simulation"
)

// Payload encoding tags. The MOIC grid is packed as raw little-endian
// float64 cells in row-major scenario-by-bucket order.
const (
	CodecRawFloat64LE = "raw-float64le"
	LayoutRowMajor    = "row-major"
)

// ErrEmptyMatrixConfig rejects configs that describe a zero-cell grid.
var ErrEmptyMatrixConfig = errors.New("matrixcache: config has no scenarios or no buckets")

// Generator produces the full payload for one matrix config. Called by
// the cache's claimant exactly once per key.
type Generator interface {
	Generate(ctx context.Context, cfg *domain.MatrixConfig) (*domain.MatrixPayload, error)
}

// EngineGenerator builds MOIC grids by running the simulation engine in
// expectation mode once per scenario-bucket cell. Scenario rows stress
// the exit-multiple assumptions across a fixed factor range; bucket
// correlation weights scale how hard each bucket feels that stress.
// Expectation mode carries no RNG, so the grid is deterministic for a
// given config.
type EngineGenerator struct {
	engine *simulation.Engine
}

// NewEngineGenerator creates a generator backed by an engine.
func NewEngineGenerator(engine *simulation.Engine) *EngineGenerator {
	return &EngineGenerator{engine: engine}
}

var _ Generator = (*EngineGenerator)(nil)

// Stress factors span [stressFloor, stressCeil] linearly across
// scenario rows, centered on the unstressed assumptions.
const (
	stressFloor = 0.5
	stressCeil  = 1.5
)

type scenarioState struct {
	Index        int     `json:"index"`
	StressFactor float64 `json:"stressFactor"`
	MeanMOIC     float64 `json:"meanMoic"`
}

type bucketParam struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Generate runs one expectation-mode simulation per grid cell.
func (g *EngineGenerator) Generate(ctx context.Context, cfg *domain.MatrixConfig) (*domain.MatrixPayload, error) {
	scenarios := cfg.ScenarioCount
	buckets := len(cfg.BucketDefinitions)
	if scenarios < 1 || buckets < 1 {
		return nil, ErrEmptyMatrixConfig
	}

	grid := make([]float64, scenarios*buckets)
	states := make([]scenarioState, scenarios)

	for s := 0; s < scenarios; s++ {
		factor := stressFactor(s, scenarios)
		rowSum := 0.0

		for b := 0; b < buckets; b++ {
			moic, err := g.cellMOIC(ctx, cfg, factor, bucketWeight(cfg, b))
			if err != nil {
				return nil, fmt.Errorf("cell scenario=%d bucket=%d: %w", s, b, err)
			}
			grid[s*buckets+b] = moic
			rowSum += moic
		}

		states[s] = scenarioState{
			Index:        s,
			StressFactor: factor,
			MeanMOIC:     rowSum / float64(buckets),
		}
	}

	stateJSON, err := json.Marshal(states)
	if err != nil {
		return nil, fmt.Errorf("encode scenario states: %w", err)
	}

	params := make([]bucketParam, buckets)
	for b, name := range cfg.BucketDefinitions {
		params[b] = bucketParam{Name: name, Weight: bucketWeight(cfg, b)}
	}
	paramJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode bucket params: %w", err)
	}

	return &domain.MatrixPayload{
		MOICMatrix:           packGrid(grid),
		ScenarioStates:       stateJSON,
		BucketParams:         paramJSON,
		CompressionCodec:     CodecRawFloat64LE,
		MatrixLayout:         LayoutRowMajor,
		BucketCount:          buckets,
		OptimalScenarioCount: optimalScenarioCount(states),
	}, nil
}

// cellMOIC runs one expectation-mode simulation with the scenario's
// stress blended into the bucket's exit assumptions.
func (g *EngineGenerator) cellMOIC(ctx context.Context, cfg *domain.MatrixConfig, factor, weight float64) (float64, error) {
	sim := cfg.Simulation
	sim.Mode = domain.ModeExpectation
	sim.RandomSeed = nil

	// Scaling median and p90 by the same positive factor preserves the
	// calibration ordering the config validator requires.
	blended := 1 + (factor-1)*weight
	sim.Market.ExitMultiplierMedian *= blended
	sim.Market.ExitMultiplierP90 *= blended

	result, err := g.engine.Run(ctx, &sim)
	if err != nil {
		return 0, err
	}
	return result.Distributions[domain.MetricTVPI].Statistics.Mean, nil
}

// stressFactor places scenario s on the linear stress range. A single
// scenario sits at the unstressed midpoint.
func stressFactor(s, scenarios int) float64 {
	if scenarios == 1 {
		return 1.0
	}
	return stressFloor + (stressCeil-stressFloor)*float64(s)/float64(scenarios-1)
}

// bucketWeight reads the correlation weight for a bucket, defaulting to
// full exposure when weights are absent or short.
func bucketWeight(cfg *domain.MatrixConfig, b int) float64 {
	if b < len(cfg.CorrelationWeights) {
		return cfg.CorrelationWeights[b]
	}
	return 1.0
}

// optimalScenarioCount is the number of scenarios whose mean MOIC
// returns capital. The best scenario always counts, so a complete
// payload never carries a zero here.
func optimalScenarioCount(states []scenarioState) int {
	count := 0
	for _, st := range states {
		if st.MeanMOIC >= 1.0 {
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

// packGrid encodes cells as little-endian float64s.
func packGrid(grid []float64) []byte {
	buf := make([]byte, 8*len(grid))
	for i, v := range grid {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// UnpackGrid decodes a packed MOIC grid back into cells. Consumers use
// it together with the record's layout and bucket-count tags.
func UnpackGrid(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("matrixcache: packed grid length %d not a multiple of 8", len(buf))
	}
	grid := make([]float64, len(buf)/8)
	for i := range grid {
		grid[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return grid, nil
}
