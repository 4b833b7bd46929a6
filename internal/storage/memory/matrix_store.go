package memory

import (
	"context"
	"sync"
	"time"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/storage"
)

// MatrixStore is an in-memory implementation of storage.MatrixStore.
// It mirrors the durable tier's transition semantics exactly so the
// cache's invariants can be tested without a database.
type MatrixStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ScenarioMatrixRecord
	now  func() time.Time
}

// NewMatrixStore creates a new in-memory matrix store.
func NewMatrixStore() *MatrixStore {
	return &MatrixStore{
		data: make(map[string]*domain.ScenarioMatrixRecord),
		now:  time.Now,
	}
}

// Compile-time interface check.
var _ storage.MatrixStore = (*MatrixStore)(nil)

// InsertPending inserts a pending row, or no-ops when the key exists.
func (s *MatrixStore) InsertPending(_ context.Context, matrixKey, fundID string) (bool, error) {
	if matrixKey == "" || fundID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[matrixKey]; exists {
		return false, nil
	}

	now := s.now()
	s.data[matrixKey] = &domain.ScenarioMatrixRecord{
		MatrixKey: matrixKey,
		FundID:    fundID,
		Status:    domain.MatrixStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

// GetByKey retrieves a record copy. Returns ErrNotFound if absent.
func (s *MatrixStore) GetByKey(_ context.Context, matrixKey string) (*domain.ScenarioMatrixRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[matrixKey]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRecord(rec), nil
}

// ClaimProcessing transitions pending → processing.
func (s *MatrixStore) ClaimProcessing(_ context.Context, matrixKey string, claimedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[matrixKey]
	if !exists {
		return storage.ErrNotFound
	}
	if rec.Status != domain.MatrixStatusPending {
		return storage.ErrInvalidTransition
	}

	rec.Status = domain.MatrixStatusProcessing
	rec.ClaimedAt = &claimedAt
	rec.UpdatedAt = s.now()
	return nil
}

// Complete writes the full payload with status=complete atomically.
func (s *MatrixStore) Complete(_ context.Context, matrixKey string, payload *domain.MatrixPayload) error {
	if !payload.Complete() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[matrixKey]
	if !exists {
		return storage.ErrNotFound
	}
	if rec.Status != domain.MatrixStatusProcessing {
		return storage.ErrInvalidTransition
	}

	p := *payload
	rec.Status = domain.MatrixStatusComplete
	rec.Payload = &p
	rec.ClaimedAt = nil
	rec.UpdatedAt = s.now()
	return nil
}

// Fail transitions processing → failed without a payload.
func (s *MatrixStore) Fail(_ context.Context, matrixKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[matrixKey]
	if !exists {
		return storage.ErrNotFound
	}
	if rec.Status != domain.MatrixStatusProcessing {
		return storage.ErrInvalidTransition
	}

	rec.Status = domain.MatrixStatusFailed
	rec.Payload = nil
	rec.ClaimedAt = nil
	rec.UpdatedAt = s.now()
	return nil
}

// Reactivate transitions failed or invalidated back to pending.
func (s *MatrixStore) Reactivate(_ context.Context, matrixKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[matrixKey]
	if !exists {
		return false, storage.ErrNotFound
	}
	if rec.Status != domain.MatrixStatusFailed && rec.Status != domain.MatrixStatusInvalidated {
		return false, nil
	}

	rec.Status = domain.MatrixStatusPending
	rec.Payload = nil
	rec.ClaimedAt = nil
	rec.UpdatedAt = s.now()
	return true, nil
}

// ReclaimStale reverts stale processing rows back to pending.
func (s *MatrixStore) ReclaimStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed := 0
	for _, rec := range s.data {
		if rec.Status == domain.MatrixStatusProcessing &&
			rec.ClaimedAt != nil && rec.ClaimedAt.Before(cutoff) {
			rec.Status = domain.MatrixStatusPending
			rec.ClaimedAt = nil
			rec.UpdatedAt = s.now()
			reclaimed++
		}
	}
	return reclaimed, nil
}

// InvalidateAll soft-marks every non-invalidated row.
func (s *MatrixStore) InvalidateAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.invalidateLocked(func(*domain.ScenarioMatrixRecord) bool { return true }), nil
}

// InvalidateFund soft-marks all rows for one fund.
func (s *MatrixStore) InvalidateFund(_ context.Context, fundID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.invalidateLocked(func(rec *domain.ScenarioMatrixRecord) bool {
		return rec.FundID == fundID
	}), nil
}

// InvalidateKey soft-marks a single row.
func (s *MatrixStore) InvalidateKey(_ context.Context, matrixKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.invalidateLocked(func(rec *domain.ScenarioMatrixRecord) bool {
		return rec.MatrixKey == matrixKey
	}), nil
}

// CountByKey returns the number of rows for a key (0 or 1 by design).
func (s *MatrixStore) CountByKey(_ context.Context, matrixKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.data[matrixKey]; exists {
		return 1, nil
	}
	return 0, nil
}

func (s *MatrixStore) invalidateLocked(match func(*domain.ScenarioMatrixRecord) bool) int {
	count := 0
	for _, rec := range s.data {
		if rec.Status == domain.MatrixStatusInvalidated || !match(rec) {
			continue
		}
		rec.Status = domain.MatrixStatusInvalidated
		rec.UpdatedAt = s.now()
		count++
	}
	return count
}

func copyRecord(rec *domain.ScenarioMatrixRecord) *domain.ScenarioMatrixRecord {
	out := *rec
	if rec.Payload != nil {
		p := *rec.Payload
		p.MOICMatrix = append([]byte(nil), rec.Payload.MOICMatrix...)
		p.ScenarioStates = append([]byte(nil), rec.Payload.ScenarioStates...)
		p.BucketParams = append([]byte(nil), rec.Payload.BucketParams...)
		out.Payload = &p
	}
	if rec.ClaimedAt != nil {
		t := *rec.ClaimedAt
		out.ClaimedAt = &t
	}
	return &out
}
