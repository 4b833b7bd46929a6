package matrixcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/idhash"
	"portfolio-lab/internal/simulation"
	"portfolio-lab/internal/storage/memory"
)

func matrixConfig() *domain.MatrixConfig {
	return &domain.MatrixConfig{
		FundID:             "fund-1",
		TaxonomyVersion:    "v3",
		ScenarioCount:      4,
		BucketDefinitions:  []string{"pre-seed", "seed", "series-a"},
		CorrelationWeights: []float64{1.0, 0.8, 0.6},
		RecyclingEnabled:   false,
		Simulation: domain.SimulationConfig{
			FundID:           "fund-1",
			NumTrials:        1,
			NumCompanies:     10,
			TimeHorizonYears: 10,
			InitialCheckSize: 1_000_000,
			Mode:             domain.ModeExpectation,
			Market: domain.MarketParameters{
				ExitMultiplierMedian: 2.0,
				ExitMultiplierP90:    5.0,
				FailureRate:          0.2,
				GraduationRate:       0.3,
				FollowOnProbability:  0.5,
				FollowOnFraction:     0.5,
				HoldPeriodYears:      2.5,
			},
		},
	}
}

// countingGenerator wraps a Generator to observe and script calls.
type countingGenerator struct {
	inner Generator

	mu       sync.Mutex
	calls    int
	failures int // fail the first N calls
}

func (g *countingGenerator) Generate(ctx context.Context, cfg *domain.MatrixConfig) (*domain.MatrixPayload, error) {
	g.mu.Lock()
	g.calls++
	fail := g.calls <= g.failures
	g.mu.Unlock()

	if fail {
		return nil, errors.New("scripted generation failure")
	}
	return g.inner.Generate(ctx, cfg)
}

func (g *countingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type cacheFixture struct {
	cache     *Cache
	durable   *memory.MatrixStore
	ephemeral *memory.EphemeralStore
	generator *countingGenerator
}

func newCacheFixture(t *testing.T, failures int) *cacheFixture {
	t.Helper()

	durable := memory.NewMatrixStore()
	ephemeral := memory.NewEphemeralStore()
	gen := &countingGenerator{
		inner:    NewEngineGenerator(simulation.New(simulation.Options{})),
		failures: failures,
	}

	return &cacheFixture{
		cache: New(Options{
			Durable:      durable,
			Ephemeral:    ephemeral,
			Generator:    gen,
			PollInterval: time.Millisecond,
			PollTimeout:  5 * time.Second,
		}),
		durable:   durable,
		ephemeral: ephemeral,
		generator: gen,
	}
}

func TestCache_GetOrComputeGenerates(t *testing.T) {
	f := newCacheFixture(t, 0)
	ctx := context.Background()
	cfg := matrixConfig()

	rec, err := f.cache.GetOrCompute(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, domain.MatrixStatusComplete, rec.Status)
	assert.True(t, rec.Payload.Complete(), "complete record must carry a full payload")
	assert.Equal(t, idhash.ComputeMatrixKey(*cfg), rec.MatrixKey)
	assert.Equal(t, len(cfg.BucketDefinitions), rec.Payload.BucketCount)

	n, err := f.durable.CountByKey(ctx, rec.MatrixKey)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_SecondCallHitsEphemeralTier(t *testing.T) {
	f := newCacheFixture(t, 0)
	ctx := context.Background()
	cfg := matrixConfig()

	first, err := f.cache.GetOrCompute(ctx, cfg)
	require.NoError(t, err)
	second, err := f.cache.GetOrCompute(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, f.generator.callCount(), "a cached matrix must not regenerate")
	assert.Equal(t, first.MatrixKey, second.MatrixKey)
	assert.Equal(t, first.Payload.MOICMatrix, second.Payload.MOICMatrix)
}

func TestCache_ConcurrentIdenticalConfigs(t *testing.T) {
	f := newCacheFixture(t, 0)
	ctx := context.Background()
	cfg := matrixConfig()

	const callers = 16
	records := make([]*domain.ScenarioMatrixRecord, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			records[i], errs[i] = f.cache.GetOrCompute(ctx, matrixConfig())
		}(i)
	}
	wg.Wait()

	key := idhash.ComputeMatrixKey(*cfg)
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Equal(t, key, records[i].MatrixKey)
		assert.True(t, records[i].Payload.Complete())
	}

	assert.Equal(t, 1, f.generator.callCount(), "exactly one caller may generate")
	n, err := f.durable.CountByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "identical configs must dedup onto one row")
}

func TestCache_FailedRowIsRetriedOnReRequest(t *testing.T) {
	f := newCacheFixture(t, 1)
	ctx := context.Background()
	cfg := matrixConfig()
	key := idhash.ComputeMatrixKey(*cfg)

	_, err := f.cache.GetOrCompute(ctx, cfg)
	require.Error(t, err, "the claimant surfaces its own generation failure")

	rec, err := f.durable.GetByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusFailed, rec.Status)
	assert.Nil(t, rec.Payload)

	rec, err = f.cache.GetOrCompute(ctx, cfg)
	require.NoError(t, err, "a failed row is a miss on re-request")
	assert.Equal(t, domain.MatrixStatusComplete, rec.Status)
	assert.Equal(t, 2, f.generator.callCount())
}

func TestCache_WaiterObservesClaimantResult(t *testing.T) {
	f := newCacheFixture(t, 0)
	ctx := context.Background()
	cfg := matrixConfig()
	key := idhash.ComputeMatrixKey(*cfg)

	// Simulate a foreign claimant mid-generation.
	created, err := f.durable.InsertPending(ctx, key, cfg.FundID)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, f.durable.ClaimProcessing(ctx, key, time.Now()))

	done := make(chan struct{})
	var rec *domain.ScenarioMatrixRecord
	var waitErr error
	go func() {
		defer close(done)
		rec, waitErr = f.cache.GetOrCompute(ctx, cfg)
	}()

	time.Sleep(20 * time.Millisecond)
	payload, err := f.generator.Generate(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, f.durable.Complete(ctx, key, payload))

	<-done
	require.NoError(t, waitErr)
	assert.Equal(t, domain.MatrixStatusComplete, rec.Status)
	assert.Equal(t, 1, f.generator.callCount(), "the waiter must not generate")
}

func TestCache_WaitTimeout(t *testing.T) {
	f := newCacheFixture(t, 0)
	f.cache.pollTimeout = 20 * time.Millisecond
	ctx := context.Background()
	cfg := matrixConfig()
	key := idhash.ComputeMatrixKey(*cfg)

	created, err := f.durable.InsertPending(ctx, key, cfg.FundID)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, f.durable.ClaimProcessing(ctx, key, time.Now()))

	_, err = f.cache.GetOrCompute(ctx, cfg)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestCache_InvalidateFundScope(t *testing.T) {
	f := newCacheFixture(t, 0)
	ctx := context.Background()
	cfg := matrixConfig()

	_, err := f.cache.GetOrCompute(ctx, cfg)
	require.NoError(t, err)

	counts, err := f.cache.Invalidate(ctx, Scope{Kind: ScopeFund, FundID: cfg.FundID})
	require.NoError(t, err)
	assert.Equal(t, Counts{Durable: 1, Ephemeral: 1}, counts)

	rec, err := f.cache.GetOrCompute(ctx, cfg)
	require.NoError(t, err, "an invalidated row regenerates on re-request")
	assert.Equal(t, domain.MatrixStatusComplete, rec.Status)
	assert.Equal(t, 2, f.generator.callCount())
}

func TestCache_InvalidateMatrixScope(t *testing.T) {
	f := newCacheFixture(t, 0)
	ctx := context.Background()
	cfg := matrixConfig()

	rec, err := f.cache.GetOrCompute(ctx, cfg)
	require.NoError(t, err)

	counts, err := f.cache.Invalidate(ctx, Scope{Kind: ScopeMatrix, MatrixKey: rec.MatrixKey})
	require.NoError(t, err)
	assert.Equal(t, Counts{Durable: 1, Ephemeral: 1}, counts)

	stored, err := f.durable.GetByKey(ctx, rec.MatrixKey)
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixStatusInvalidated, stored.Status, "soft mark, no hard delete")
}

func TestCache_InvalidateAllScope(t *testing.T) {
	f := newCacheFixture(t, 0)
	ctx := context.Background()

	cfgA := matrixConfig()
	cfgB := matrixConfig()
	cfgB.FundID = "fund-2"
	cfgB.Simulation.FundID = "fund-2"

	_, err := f.cache.GetOrCompute(ctx, cfgA)
	require.NoError(t, err)
	_, err = f.cache.GetOrCompute(ctx, cfgB)
	require.NoError(t, err)

	counts, err := f.cache.Invalidate(ctx, Scope{Kind: ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, Counts{Durable: 2, Ephemeral: 2}, counts)
}

func TestCache_InvalidateRejectsMalformedScopes(t *testing.T) {
	f := newCacheFixture(t, 0)
	ctx := context.Background()

	_, err := f.cache.Invalidate(ctx, Scope{Kind: ScopeFund})
	assert.Error(t, err)
	_, err = f.cache.Invalidate(ctx, Scope{Kind: ScopeMatrix})
	assert.Error(t, err)
	_, err = f.cache.Invalidate(ctx, Scope{Kind: "bogus"})
	assert.Error(t, err)
}
