package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/storage"
)

func completePayload() *domain.MatrixPayload {
	return &domain.MatrixPayload{
		MOICMatrix:           []byte{1, 2, 3, 4},
		ScenarioStates:       []byte(`[{"scenario":0}]`),
		BucketParams:         []byte(`[{"bucket":"seed"}]`),
		CompressionCodec:     "raw-float64le",
		MatrixLayout:         "row-major",
		BucketCount:          3,
		OptimalScenarioCount: 500,
	}
}

func TestMatrixStore_InsertPendingIdempotent(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	created, err := s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)
	assert.False(t, created, "second insert must no-op")

	count, err := s.CountByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMatrixStore_ConcurrentInsertOneWinner(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	const writers = 32
	winners := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			created, err := s.InsertPending(ctx, "key-1", "fund-1")
			require.NoError(t, err)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one writer must create the row")

	count, err := s.CountByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMatrixStore_Lifecycle(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)

	require.NoError(t, s.ClaimProcessing(ctx, "key-1", time.Now()))

	rec, err := s.GetByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusProcessing, rec.Status)
	assert.NotNil(t, rec.ClaimedAt)

	require.NoError(t, s.Complete(ctx, "key-1", completePayload()))

	rec, err = s.GetByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusComplete, rec.Status)
	require.NotNil(t, rec.Payload)
	assert.True(t, rec.Payload.Complete(), "complete row must have full payload")
}

func TestMatrixStore_ClaimOnlyFromPending(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)
	require.NoError(t, s.ClaimProcessing(ctx, "key-1", time.Now()))

	err = s.ClaimProcessing(ctx, "key-1", time.Now())
	assert.ErrorIs(t, err, storage.ErrInvalidTransition, "second claim must lose")
}

func TestMatrixStore_CompleteRejectsPartialPayload(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)
	require.NoError(t, s.ClaimProcessing(ctx, "key-1", time.Now()))

	partial := completePayload()
	partial.ScenarioStates = nil
	err = s.Complete(ctx, "key-1", partial)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	rec, err := s.GetByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusProcessing, rec.Status, "rejected write must not change status")
	assert.Nil(t, rec.Payload)
}

func TestMatrixStore_CompleteRequiresProcessing(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)

	err = s.Complete(ctx, "key-1", completePayload())
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)
}

func TestMatrixStore_FailClearsPayload(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)
	require.NoError(t, s.ClaimProcessing(ctx, "key-1", time.Now()))
	require.NoError(t, s.Fail(ctx, "key-1"))

	rec, err := s.GetByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusFailed, rec.Status)
	assert.Nil(t, rec.Payload)
}

func TestMatrixStore_Reactivate(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)
	require.NoError(t, s.ClaimProcessing(ctx, "key-1", time.Now()))
	require.NoError(t, s.Fail(ctx, "key-1"))

	won, err := s.Reactivate(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, won)

	rec, err := s.GetByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusPending, rec.Status)
	assert.Nil(t, rec.Payload)

	won, err = s.Reactivate(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, won, "a pending row is not reactivatable")

	_, err = s.Reactivate(ctx, "absent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMatrixStore_ReclaimStale(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "stale", "fund-1")
	require.NoError(t, err)
	_, err = s.InsertPending(ctx, "fresh", "fund-1")
	require.NoError(t, err)

	require.NoError(t, s.ClaimProcessing(ctx, "stale", time.Now().Add(-10*time.Minute)))
	require.NoError(t, s.ClaimProcessing(ctx, "fresh", time.Now()))

	reclaimed, err := s.ReclaimStale(ctx, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	rec, err := s.GetByKey(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusPending, rec.Status)

	rec, err = s.GetByKey(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusProcessing, rec.Status)
}

func TestMatrixStore_ReclaimRaceSingleWinner(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "stale", "fund-1")
	require.NoError(t, err)
	require.NoError(t, s.ClaimProcessing(ctx, "stale", time.Now().Add(-10*time.Minute)))

	const reapers = 16
	total := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(reapers)
	for i := 0; i < reapers; i++ {
		go func() {
			defer wg.Done()
			n, err := s.ReclaimStale(ctx, time.Now().Add(-5*time.Minute))
			require.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total, "racing reapers must reclaim the row exactly once")
}

func TestMatrixStore_InvalidateScopes(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	for _, key := range []string{"a1", "a2"} {
		_, err := s.InsertPending(ctx, key, "fund-a")
		require.NoError(t, err)
	}
	_, err := s.InsertPending(ctx, "b1", "fund-b")
	require.NoError(t, err)

	n, err := s.InvalidateFund(ctx, "fund-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := s.GetByKey(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusPending, rec.Status, "other funds untouched")

	// Already-invalidated rows are not counted again.
	n, err = s.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.InvalidateKey(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMatrixStore_GetReturnsCopy(t *testing.T) {
	s := NewMatrixStore()
	ctx := context.Background()

	_, err := s.InsertPending(ctx, "key-1", "fund-1")
	require.NoError(t, err)
	require.NoError(t, s.ClaimProcessing(ctx, "key-1", time.Now()))
	require.NoError(t, s.Complete(ctx, "key-1", completePayload()))

	rec, err := s.GetByKey(ctx, "key-1")
	require.NoError(t, err)
	rec.Payload.MOICMatrix[0] = 0xFF
	rec.Status = domain.MatrixStatusFailed

	fresh, err := s.GetByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusComplete, fresh.Status)
}
