package storage

import (
	"context"
	"time"

	"portfolio-lab/internal/domain"
)

// MatrixStore is the durable tier of the scenario matrix cache: one
// uniquely-keyed row per matrix key with status-conditional transitions.
// The durable tier is the single source of truth; the ephemeral tier is
// never trusted alone.
type MatrixStore interface {
	// InsertPending inserts a pending row for the key, or no-ops when a
	// row already exists (unique constraint). Returns true when this
	// caller created the row — i.e. it is the generation claimant's
	// entry ticket.
	InsertPending(ctx context.Context, matrixKey, fundID string) (bool, error)

	// GetByKey retrieves the record. Returns ErrNotFound if absent.
	GetByKey(ctx context.Context, matrixKey string) (*domain.ScenarioMatrixRecord, error)

	// ClaimProcessing transitions pending → processing, recording the
	// claim time. Returns ErrInvalidTransition when the row is not
	// pending (another worker claimed it, or it already finished).
	ClaimProcessing(ctx context.Context, matrixKey string, claimedAt time.Time) error

	// Complete atomically writes the full payload together with
	// status=complete, in one transaction, iff the row is processing.
	// An incomplete payload is rejected with ErrInvalidInput so a
	// complete row can never miss a payload field.
	Complete(ctx context.Context, matrixKey string, payload *domain.MatrixPayload) error

	// Fail transitions processing → failed without a payload.
	Fail(ctx context.Context, matrixKey string) error

	// Reactivate transitions a failed or invalidated row back to
	// pending, clearing any payload, so a re-request can regenerate it.
	// Returns true when this caller performed the transition; false
	// when the row was already out of a terminal retryable state.
	Reactivate(ctx context.Context, matrixKey string) (bool, error)

	// ReclaimStale reverts processing rows claimed before cutoff back
	// to pending. The update is status-conditional, so two racing
	// reapers cannot both reclaim the same row. Returns how many rows
	// were reclaimed.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)

	// InvalidateAll soft-marks every non-invalidated row. Rows are
	// never hard-deleted; the audit trail is preserved.
	InvalidateAll(ctx context.Context) (int, error)

	// InvalidateFund soft-marks all rows for one fund.
	InvalidateFund(ctx context.Context, fundID string) (int, error)

	// InvalidateKey soft-marks a single row.
	InvalidateKey(ctx context.Context, matrixKey string) (int, error)

	// CountByKey returns the number of rows for a key. The unique
	// constraint makes any value above 1 a bug.
	CountByKey(ctx context.Context, matrixKey string) (int, error)
}

// EphemeralStore is the fast cache tier: a TTL'd key-value store. It is
// a pure performance cache — a miss or stale read here is always safe.
type EphemeralStore interface {
	// Get returns the value and true when present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes every key with the prefix, returning the
	// number removed. Used by scoped invalidation.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// Job is one queued matrix-generation request.
type Job struct {
	ID         string
	MatrixKey  string
	EnqueuedAt time.Time
}

// JobQueue is the opaque async-generation collaborator. The core only
// enqueues work and claims/completes its own jobs; retry and backoff
// policy belong to the queue, not to this module.
type JobQueue interface {
	// Enqueue adds a generation job for the key, returning the job id.
	Enqueue(ctx context.Context, matrixKey string) (string, error)

	// Claim pops one job. Returns ok=false when the queue is empty.
	Claim(ctx context.Context) (*Job, bool, error)

	// Complete acknowledges a claimed job.
	Complete(ctx context.Context, jobID string) error
}

// ScenarioParamStore provides read-only named MarketParameters presets
// from the historical-scenario parameter table.
type ScenarioParamStore interface {
	// GetByName retrieves a preset. Returns ErrNotFound if absent.
	GetByName(ctx context.Context, name string) (*domain.HistoricalScenario, error)

	// List retrieves all presets ordered by name.
	List(ctx context.Context) ([]*domain.HistoricalScenario, error)
}

// DistributionArchive is an append-only analytics sink for validated
// simulation outputs.
type DistributionArchive interface {
	// InsertRun archives every distribution of one run.
	InsertRun(ctx context.Context, result *domain.SimulationResult) error

	// GetByFund retrieves archived distributions for a fund, newest first.
	GetByFund(ctx context.Context, fundID string) ([]*domain.MetricDistribution, error)
}
