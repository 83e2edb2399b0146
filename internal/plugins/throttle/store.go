package throttle

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Store.Get when no entry exists for a key.
var ErrNotFound = errors.New("throttle entry not found")

// ErrContention is returned when a store gives up on an update after
// repeated conflicting writes to the same key.
var ErrContention = errors.New("throttle entry update contended")

// Store persists throttle entries keyed by hashed identity. Update must be
// atomic per key: concurrent Updates on one key are serialized so no
// failure is ever lost.
type Store interface {
	// Get returns the entry for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Update reads the current entry (nil if absent), applies fn and writes
	// the result, all as one atomic step. Returns the written entry.
	Update(ctx context.Context, key string, fn func(cur *Entry) Entry) (Entry, error)

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// pruneEvery controls how often MemoryStore sweeps expired entries.
const pruneEvery = 256

// MemoryStore is an in-process Store for single-instance deployments and
// tests. State is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	updates int
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Get returns a copy of the entry so callers cannot mutate stored state.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Update applies fn under the store mutex.
func (s *MemoryStore) Update(_ context.Context, key string, fn func(cur *Entry) Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur *Entry
	if e, ok := s.entries[key]; ok {
		cur = &e
	}
	next := fn(cur)
	s.entries[key] = next

	s.updates++
	if s.updates%pruneEvery == 0 {
		s.pruneLocked()
	}
	return next, nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of tracked identities.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// pruneLocked drops entries past their expiry. Caller holds mu.
func (s *MemoryStore) pruneLocked() {
	now := s.now()
	for k, e := range s.entries {
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			delete(s.entries, k)
		}
	}
}
