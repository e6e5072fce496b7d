// Package replay implements the short-TTL event deduplication cache. The
// provider retries deliveries, intentionally or not; each event key is
// processed once per TTL window.
package replay

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long a processed event key is remembered.
const DefaultTTL = 10 * time.Minute

// InMemoryStore is a mutex-guarded replay cache. State is process-local:
// replicas do not share it, which is an accepted limitation of
// single-instance deployment.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration

	now func() time.Time
}

// NewInMemoryStore creates a replay cache with the given TTL; zero selects
// DefaultTTL.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Seen reports whether key was marked within the TTL. An expired entry is
// treated as absent and evicted immediately, even between sweeps.
func (s *InMemoryStore) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	firstSeen, ok := s.entries[key]
	if !ok {
		return false
	}
	if s.now().Sub(firstSeen) > s.ttl {
		delete(s.entries, key)
		return false
	}
	return true
}

// MarkSeen records key as processed at the current time.
func (s *InMemoryStore) MarkSeen(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.now()
}

// Sweep removes entries older than the TTL and returns how many were
// evicted. Runs on a fixed interval from main; the lock is held for a
// single map scan only.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, firstSeen := range s.entries {
		if now.Sub(firstSeen) > s.ttl {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
