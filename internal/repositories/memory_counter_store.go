package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

// MemoryCounterStore is a process-local TTL store used for single-instance
// deployments and tests. Expired entries are dropped lazily on access.
type MemoryCounterStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

// NewMemoryCounterStore creates an empty store driven by clk (clock.New() in production)
func NewMemoryCounterStore(clk clock.Clock) *MemoryCounterStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryCounterStore{
		clock:   clk,
		entries: make(map[string]memoryEntry),
	}
}

// live returns the entry if present and unexpired; caller holds mu
func (s *MemoryCounterStore) live(key string, now time.Time) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryCounterStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	e, ok := s.live(key, now)
	if !ok {
		e = memoryEntry{expiresAt: now.Add(ttl)}
	}
	e.value++
	s.entries[key] = e
	return e.value, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key, s.clock.Now())
	return e.value, ok, nil
}

func (s *MemoryCounterStore) MarkSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	_, seen := s.live(key, now)
	s.entries[key] = memoryEntry{value: 1, expiresAt: now.Add(ttl)}
	return seen, nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *MemoryCounterStore) Ping(context.Context) error {
	return nil
}
