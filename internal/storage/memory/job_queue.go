package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portfolio-lab/internal/storage"
)

// JobQueue is an in-memory FIFO implementation of storage.JobQueue.
type JobQueue struct {
	mu      sync.Mutex
	pending []*storage.Job
	claimed map[string]*storage.Job
	nextID  int
	now     func() time.Time
}

// NewJobQueue creates a new in-memory job queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{
		claimed: make(map[string]*storage.Job),
		now:     time.Now,
	}
}

// Compile-time interface check.
var _ storage.JobQueue = (*JobQueue)(nil)

// Enqueue adds a generation job, returning the job id.
func (q *JobQueue) Enqueue(_ context.Context, matrixKey string) (string, error) {
	if matrixKey == "" {
		return "", storage.ErrInvalidInput
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	job := &storage.Job{
		ID:         fmt.Sprintf("job-%d", q.nextID),
		MatrixKey:  matrixKey,
		EnqueuedAt: q.now(),
	}
	q.pending = append(q.pending, job)
	return job.ID, nil
}

// Claim pops the oldest job. Returns ok=false when the queue is empty.
func (q *JobQueue) Claim(_ context.Context) (*storage.Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false, nil
	}

	job := q.pending[0]
	q.pending = q.pending[1:]
	q.claimed[job.ID] = job

	out := *job
	return &out, true, nil
}

// Complete acknowledges a claimed job.
func (q *JobQueue) Complete(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.claimed[jobID]; !exists {
		return storage.ErrNotFound
	}
	delete(q.claimed, jobID)
	return nil
}
