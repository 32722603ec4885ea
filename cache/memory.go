package cache

import (
	"context"
	"sync"
	"time"

	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
)

// MemoryStore implements Store using an in-memory map with expiring entries.
type MemoryStore struct {
	mu        sync.RWMutex
	ttl       time.Duration
	entries   map[uuid.UUID]*cacheEntry[Entry]
	lastSweep time.Time
}

// NewMemoryStore creates a new in-memory cache store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[uuid.UUID]*cacheEntry[Entry]),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*model.Retrievable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	found := make(map[uuid.UUID]*model.Retrievable, len(ids))
	for _, id := range ids {
		entry, exists := s.entries[id]
		if !exists || entry.expired(now) {
			continue
		}
		found[id] = entry.value.Retrievable()
	}
	return found, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, retrievables ...*model.Retrievable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.sweep(now)
	expiresAt := now.Add(s.ttl)
	for _, r := range retrievables {
		s.entries[r.ID] = &cacheEntry[Entry]{value: newEntry(r), expiresAt: expiresAt}
	}
	return nil
}

// sweep drops expired entries at most once per TTL. The caller holds the
// write lock.
func (s *MemoryStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now
	for id, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, id)
		}
	}
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, ids ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[uuid.UUID]*cacheEntry[Entry])
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[uuid.UUID]*cacheEntry[Entry])
	return nil
}
