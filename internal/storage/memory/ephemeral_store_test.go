package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-lab/internal/storage"
)

func TestEphemeralStore_SetGet(t *testing.T) {
	s := NewEphemeralStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte("v1"), time.Minute))

	val, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), val)
}

func TestEphemeralStore_MissingKey(t *testing.T) {
	s := NewEphemeralStore()

	_, ok, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEphemeralStore_Expiry(t *testing.T) {
	s := NewEphemeralStore()
	ctx := context.Background()

	current := time.Unix(1000, 0)
	s.now = func() time.Time { return current }

	require.NoError(t, s.Set(ctx, "k1", []byte("v1"), time.Minute))

	current = current.Add(30 * time.Second)
	_, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok, "unexpired entry should be visible")

	current = current.Add(31 * time.Second)
	_, ok, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must be a miss")
}

func TestEphemeralStore_InvalidTTL(t *testing.T) {
	s := NewEphemeralStore()

	err := s.Set(context.Background(), "k1", []byte("v1"), 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEphemeralStore_DeleteByPrefix(t *testing.T) {
	s := NewEphemeralStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "matrix:fund-a:1", []byte("x"), time.Minute))
	require.NoError(t, s.Set(ctx, "matrix:fund-a:2", []byte("y"), time.Minute))
	require.NoError(t, s.Set(ctx, "matrix:fund-b:1", []byte("z"), time.Minute))

	n, err := s.DeleteByPrefix(ctx, "matrix:fund-a:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := s.Get(ctx, "matrix:fund-b:1")
	require.NoError(t, err)
	assert.True(t, ok, "other prefixes untouched")
}

func TestEphemeralStore_GetReturnsCopy(t *testing.T) {
	s := NewEphemeralStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte("abc"), time.Minute))

	val, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	val[0] = 'z'

	fresh, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), fresh)
}

func TestJobQueue_FIFO(t *testing.T) {
	q := NewJobQueue()
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "key-1")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "key-2")
	require.NoError(t, err)

	job, ok, err := q.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "key-1", job.MatrixKey)
	assert.Equal(t, id1, job.ID)

	require.NoError(t, q.Complete(ctx, job.ID))
	assert.ErrorIs(t, q.Complete(ctx, job.ID), storage.ErrNotFound)
}

func TestJobQueue_ClaimEmpty(t *testing.T) {
	q := NewJobQueue()

	_, ok, err := q.Claim(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScenarioParamStore_Seeded(t *testing.T) {
	s := NewScenarioParamStore()
	ctx := context.Background()

	preset, err := s.GetByName(ctx, "baseline")
	require.NoError(t, err)
	assert.Equal(t, 2.0, preset.Parameters.ExitMultiplierMedian)

	_, err = s.GetByName(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name, "list must be name-ordered")
	}
}
