// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package csrf

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps token digests in process.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, digest string, expiresAt time.Time) error {
	s.mu.Lock()
	s.tokens[digest] = expiresAt
	s.mu.Unlock()
	return nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, digest string) (time.Time, bool, error) {
	s.mu.RLock()
	exp, ok := s.tokens[digest]
	s.mu.RUnlock()
	return exp, ok, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, digest string) error {
	s.mu.Lock()
	delete(s.tokens, digest)
	s.mu.Unlock()
	return nil
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for d, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, d)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored digests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }
