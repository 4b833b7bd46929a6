package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"portfolio-lab/internal/storage"
)

// EphemeralStore is an in-memory implementation of
// storage.EphemeralStore with per-key TTL. Expired entries are dropped
// lazily on read and swept on write, which keeps the store dependency-
// free; a networked KV store slots in behind the same interface.
type EphemeralStore struct {
	mu   sync.RWMutex
	data map[string]ephemeralEntry
	now  func() time.Time
}

type ephemeralEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewEphemeralStore creates a new in-memory TTL store.
func NewEphemeralStore() *EphemeralStore {
	return &EphemeralStore{
		data: make(map[string]ephemeralEntry),
		now:  time.Now,
	}
}

// Compile-time interface check.
var _ storage.EphemeralStore = (*EphemeralStore)(nil)

// Get returns the value and true when present and unexpired.
func (s *EphemeralStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; another writer may have
		// refreshed the key.
		if e, ok := s.data[key]; ok && s.now().After(e.expiresAt) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores the value with a TTL.
func (s *EphemeralStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" || ttl <= 0 {
		return storage.ErrInvalidInput
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	s.data[key] = ephemeralEntry{value: stored, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (s *EphemeralStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// DeleteByPrefix removes every unexpired key with the prefix.
func (s *EphemeralStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	count := 0
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
			count++
		}
	}
	return count, nil
}

// sweepLocked drops expired entries. Caller must hold the write lock.
func (s *EphemeralStore) sweepLocked() {
	now := s.now()
	for key, entry := range s.data {
		if now.After(entry.expiresAt) {
			delete(s.data, key)
		}
	}
}
