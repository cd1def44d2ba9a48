package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"cadenza/internal/core"
)

// MemoryCandidateStore keeps the candidates of the latest detection run in
// process memory. Each run starts from an empty cache that holds at least
// the whole run, so a handle printed by detect is never evicted by its
// siblings; only the TTL retires it.
type MemoryCandidateStore struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries *LRUCache[core.DetectionCandidate]
}

func NewMemoryCandidateStore(maxSize int, ttl time.Duration) *MemoryCandidateStore {
	return &MemoryCandidateStore{
		maxSize: maxSize,
		ttl:     ttl,
		entries: NewLRUCache[core.DetectionCandidate](maxSize, ttl),
	}
}

// ReplaceCurrent makes candidates the current set. Handles of any previous
// run stop resolving.
func (s *MemoryCandidateStore) ReplaceCurrent(_ context.Context, candidates []core.DetectionCandidate) error {
	entries := NewLRUCache[core.DetectionCandidate](max(s.maxSize, len(candidates)), s.ttl)
	for _, c := range candidates {
		c.TransactionIDs = slices.Clone(c.TransactionIDs)
		entries.Set(c.Handle, c)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

func (s *MemoryCandidateStore) Lookup(_ context.Context, handle string) (core.DetectionCandidate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.entries.Get(handle)
	if !ok {
		return core.DetectionCandidate{}, false, nil
	}
	c.TransactionIDs = slices.Clone(c.TransactionIDs)
	return c, true, nil
}

func (s *MemoryCandidateStore) Remove(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Delete(handle)
	return nil
}

func (s *MemoryCandidateStore) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.CleanExpired()
}

// Size reports how many candidates of the current run are held.
func (s *MemoryCandidateStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Size()
}
