package domain

import "time"

// MatrixStatus is the lifecycle state of a scenario matrix record.
type MatrixStatus string

// Matrix status constants. pending → processing → {complete | failed}.
// processing may revert to pending via the stale-claim reaper.
// invalidated is a soft-delete terminal state set by cache invalidation.
const (
	MatrixStatusPending     MatrixStatus = "pending"
	MatrixStatusProcessing  MatrixStatus = "processing"
	MatrixStatusComplete    MatrixStatus = "complete"
	MatrixStatusFailed      MatrixStatus = "failed"
	MatrixStatusInvalidated MatrixStatus = "invalidated"
)

// Terminal reports whether a status ends the generation lifecycle.
func (s MatrixStatus) Terminal() bool {
	return s == MatrixStatusComplete || s == MatrixStatusFailed || s == MatrixStatusInvalidated
}

// MatrixPayload is the generated content of a complete record. All
// fields are written atomically with status=complete; a complete record
// never has a missing payload field.
type MatrixPayload struct {
	// MOICMatrix is the packed scenario-by-bucket MOIC grid.
	MOICMatrix []byte

	// ScenarioStates is JSON metadata describing each scenario row.
	ScenarioStates []byte

	// BucketParams is JSON metadata describing bucket definitions.
	BucketParams []byte

	// CompressionCodec tags how MOICMatrix is encoded.
	CompressionCodec string

	// MatrixLayout tags the grid ordering (row-major scenario×bucket).
	MatrixLayout string

	BucketCount          int
	OptimalScenarioCount int
}

// Complete reports whether every payload field is populated.
func (p *MatrixPayload) Complete() bool {
	if p == nil {
		return false
	}
	return len(p.MOICMatrix) > 0 &&
		len(p.ScenarioStates) > 0 &&
		len(p.BucketParams) > 0 &&
		p.CompressionCodec != "" &&
		p.MatrixLayout != "" &&
		p.BucketCount > 0 &&
		p.OptimalScenarioCount > 0
}

// ScenarioMatrixRecord is one durable row of the scenario matrix cache,
// uniquely keyed by MatrixKey.
type ScenarioMatrixRecord struct {
	MatrixKey string
	FundID    string
	Status    MatrixStatus
	Payload   *MatrixPayload // nil unless Status == complete
	ClaimedAt *time.Time     // set while processing
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatrixConfig is the normalized generation configuration hashed into a
// matrix key. Identical configs always hash identically.
type MatrixConfig struct {
	FundID             string
	TaxonomyVersion    string
	ScenarioCount      int
	BucketDefinitions  []string
	CorrelationWeights []float64
	RecyclingEnabled   bool
	Simulation         SimulationConfig
}
