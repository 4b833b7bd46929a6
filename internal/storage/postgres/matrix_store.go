package postgres

import (
	"context"
	"fmt"
	"time"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/storage"
)

// MatrixStore implements storage.MatrixStore using PostgreSQL. The
// scenario_matrices table carries a unique key per matrix plus a CHECK
// constraint mirroring the payload completeness invariant, so a partial
// complete row is rejected by the database itself.
type MatrixStore struct {
	pool *Pool
}

// NewMatrixStore creates a new MatrixStore.
func NewMatrixStore(pool *Pool) *MatrixStore {
	return &MatrixStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MatrixStore = (*MatrixStore)(nil)

const matrixColumns = `
	matrix_key, fund_id, status,
	moic_matrix, scenario_states, bucket_params,
	compression_codec, matrix_layout, bucket_count, optimal_scenario_count,
	claimed_at, created_at, updated_at
`

// InsertPending inserts a pending row, or no-ops when the key exists.
// ON CONFLICT DO NOTHING makes the unique-constraint race benign: the
// one caller that inserted the row gets created=true.
func (s *MatrixStore) InsertPending(ctx context.Context, matrixKey, fundID string) (bool, error) {
	if matrixKey == "" || fundID == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO scenario_matrices (matrix_key, fund_id, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (matrix_key) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, matrixKey, fundID)
	if err != nil {
		return false, fmt.Errorf("insert pending matrix: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByKey retrieves a record. Returns ErrNotFound if absent.
func (s *MatrixStore) GetByKey(ctx context.Context, matrixKey string) (*domain.ScenarioMatrixRecord, error) {
	query := `SELECT ` + matrixColumns + ` FROM scenario_matrices WHERE matrix_key = $1`

	row := s.pool.QueryRow(ctx, query, matrixKey)
	rec, err := scanMatrixRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get matrix by key: %w", err)
	}
	return rec, nil
}

// ClaimProcessing transitions pending → processing with an optimistic
// status-conditional update. Exactly one of any number of racing
// claimants sees a row affected.
func (s *MatrixStore) ClaimProcessing(ctx context.Context, matrixKey string, claimedAt time.Time) error {
	query := `
		UPDATE scenario_matrices
		SET status = 'processing', claimed_at = $2, updated_at = now()
		WHERE matrix_key = $1 AND status = 'pending'
	`

	tag, err := s.pool.Exec(ctx, query, matrixKey, claimedAt)
	if err != nil {
		return fmt.Errorf("claim matrix: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, matrixKey)
	}
	return nil
}

// Complete atomically writes the full payload with status=complete.
// The single UPDATE statement is the transaction: readers observe
// either the processing row or the fully-populated complete row.
func (s *MatrixStore) Complete(ctx context.Context, matrixKey string, payload *domain.MatrixPayload) error {
	if !payload.Complete() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE scenario_matrices
		SET status = 'complete',
		    moic_matrix = $2,
		    scenario_states = $3,
		    bucket_params = $4,
		    compression_codec = $5,
		    matrix_layout = $6,
		    bucket_count = $7,
		    optimal_scenario_count = $8,
		    claimed_at = NULL,
		    updated_at = now()
		WHERE matrix_key = $1 AND status = 'processing'
	`

	tag, err := s.pool.Exec(ctx, query,
		matrixKey,
		payload.MOICMatrix,
		payload.ScenarioStates,
		payload.BucketParams,
		payload.CompressionCodec,
		payload.MatrixLayout,
		payload.BucketCount,
		payload.OptimalScenarioCount,
	)
	if err != nil {
		return fmt.Errorf("complete matrix: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, matrixKey)
	}
	return nil
}

// Fail transitions processing → failed without a payload.
func (s *MatrixStore) Fail(ctx context.Context, matrixKey string) error {
	query := `
		UPDATE scenario_matrices
		SET status = 'failed',
		    moic_matrix = NULL,
		    scenario_states = NULL,
		    bucket_params = NULL,
		    compression_codec = NULL,
		    matrix_layout = NULL,
		    bucket_count = NULL,
		    optimal_scenario_count = NULL,
		    claimed_at = NULL,
		    updated_at = now()
		WHERE matrix_key = $1 AND status = 'processing'
	`

	tag, err := s.pool.Exec(ctx, query, matrixKey)
	if err != nil {
		return fmt.Errorf("fail matrix: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, matrixKey)
	}
	return nil
}

// Reactivate transitions failed or invalidated back to pending.
func (s *MatrixStore) Reactivate(ctx context.Context, matrixKey string) (bool, error) {
	query := `
		UPDATE scenario_matrices
		SET status = 'pending',
		    moic_matrix = NULL,
		    scenario_states = NULL,
		    bucket_params = NULL,
		    compression_codec = NULL,
		    matrix_layout = NULL,
		    bucket_count = NULL,
		    optimal_scenario_count = NULL,
		    claimed_at = NULL,
		    updated_at = now()
		WHERE matrix_key = $1 AND status IN ('failed', 'invalidated')
	`

	tag, err := s.pool.Exec(ctx, query, matrixKey)
	if err != nil {
		return false, fmt.Errorf("reactivate matrix: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "wrong state" from "no such row".
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scenario_matrices WHERE matrix_key = $1)`,
		matrixKey,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check matrix exists: %w", err)
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

// ReclaimStale reverts processing rows claimed before cutoff back to
// pending. The status+claimed_at condition means two racing reapers
// cannot both count the same row.
func (s *MatrixStore) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE scenario_matrices
		SET status = 'pending', claimed_at = NULL, updated_at = now()
		WHERE status = 'processing' AND claimed_at < $1
	`

	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale matrices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// InvalidateAll soft-marks every non-invalidated row.
func (s *MatrixStore) InvalidateAll(ctx context.Context) (int, error) {
	return s.invalidate(ctx,
		`UPDATE scenario_matrices SET status = 'invalidated', updated_at = now()
		 WHERE status <> 'invalidated'`)
}

// InvalidateFund soft-marks all rows for one fund.
func (s *MatrixStore) InvalidateFund(ctx context.Context, fundID string) (int, error) {
	return s.invalidate(ctx,
		`UPDATE scenario_matrices SET status = 'invalidated', updated_at = now()
		 WHERE status <> 'invalidated' AND fund_id = $1`, fundID)
}

// InvalidateKey soft-marks a single row.
func (s *MatrixStore) InvalidateKey(ctx context.Context, matrixKey string) (int, error) {
	return s.invalidate(ctx,
		`UPDATE scenario_matrices SET status = 'invalidated', updated_at = now()
		 WHERE status <> 'invalidated' AND matrix_key = $1`, matrixKey)
}

// CountByKey returns the number of rows for a key (0 or 1 under the
// unique constraint).
func (s *MatrixStore) CountByKey(ctx context.Context, matrixKey string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM scenario_matrices WHERE matrix_key = $1`,
		matrixKey,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count matrices by key: %w", err)
	}
	return count, nil
}

func (s *MatrixStore) invalidate(ctx context.Context, query string, args ...interface{}) (int, error) {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate matrices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// transitionFailure maps a zero-row conditional update to the right
// sentinel: ErrNotFound when the row is absent, ErrInvalidTransition
// when it exists in another state.
func (s *MatrixStore) transitionFailure(ctx context.Context, matrixKey string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scenario_matrices WHERE matrix_key = $1)`,
		matrixKey,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check matrix exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrInvalidTransition
}

// rowScanner abstracts pgx.Row for scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatrixRecord(row rowScanner) (*domain.ScenarioMatrixRecord, error) {
	var (
		rec              domain.ScenarioMatrixRecord
		status           string
		moicMatrix       []byte
		scenarioStates   []byte
		bucketParams     []byte
		compressionCodec *string
		matrixLayout     *string
		bucketCount      *int
		optimalScenarios *int
	)

	err := row.Scan(
		&rec.MatrixKey,
		&rec.FundID,
		&status,
		&moicMatrix,
		&scenarioStates,
		&bucketParams,
		&compressionCodec,
		&matrixLayout,
		&bucketCount,
		&optimalScenarios,
		&rec.ClaimedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.MatrixStatus(status)
	if rec.Status == domain.MatrixStatusComplete {
		rec.Payload = &domain.MatrixPayload{
			MOICMatrix:     moicMatrix,
			ScenarioStates: scenarioStates,
			BucketParams:   bucketParams,
		}
		if compressionCodec != nil {
			rec.Payload.CompressionCodec = *compressionCodec
		}
		if matrixLayout != nil {
			rec.Payload.MatrixLayout = *matrixLayout
		}
		if bucketCount != nil {
			rec.Payload.BucketCount = *bucketCount
		}
		if optimalScenarios != nil {
			rec.Payload.OptimalScenarioCount = *optimalScenarios
		}
	}
	return &rec, nil
}
