package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// UpdateFunc receives the current window for an address and returns the
// window to persist along with the admission decision.
type UpdateFunc func(current Window) (next Window, allowed bool)

// Store holds one Window per client address
type Store interface {
	// Update applies fn to the window stored under key and persists the
	// result. Calls for the same key never interleave.
	Update(ctx context.Context, key string, fn UpdateFunc) (bool, error)
}

// Sweeper is implemented by stores that need explicit eviction of idle addresses
type Sweeper interface {
	Sweep(now time.Time) int
}

// ErrContention is returned when a store could not apply an update atomically
var ErrContention = errors.New("ratelimit: concurrent update contention")

// MemoryStore keeps windows in process memory, bounded to a fixed number of
// addresses. When full, the least recently seen address is forgotten.
type MemoryStore struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, Window]
	window time.Duration
}

// NewMemoryStore creates a store that tracks at most maxAddresses addresses.
// window is the limiter's trailing window, used by Sweep.
func NewMemoryStore(maxAddresses int, window time.Duration) (*MemoryStore, error) {
	cache, err := lru.New[string, Window](maxAddresses)
	if err != nil {
		return nil, fmt.Errorf("failed to create address cache: %w", err)
	}
	return &MemoryStore{cache: cache, window: window}, nil
}

// Update applies fn under the store lock
func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, _ := s.cache.Get(key)
	next, allowed := fn(current)
	s.cache.Add(key, next)
	return allowed, nil
}

// Sweep forgets every address whose window has fully expired at now and
// returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.window)
	removed := 0
	for _, key := range s.cache.Keys() {
		w, ok := s.cache.Peek(key)
		if ok && w.Expired(cutoff) {
			s.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked addresses
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Peek returns a copy of the window stored for key without touching recency
func (s *MemoryStore) Peek(key string) Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, _ := s.cache.Peek(key)
	return append(Window(nil), w...)
}
