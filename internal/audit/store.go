// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"context"
	"sync"
	"time"
)

// Store persists events. Appends come from a single writer; reads may be
// concurrent with it and must see a consistent snapshot.
type Store interface {
	// Append adds e to the log.
	Append(ctx context.Context, e *Event) error

	// Query returns events matching f, newest first, honoring Limit and Offset.
	Query(ctx context.Context, f Filter) ([]Event, error)

	// Count returns the number of events matching f, ignoring paging.
	Count(ctx context.Context, f Filter) (int, error)

	// All returns every event with start <= timestamp <= end, oldest first.
	All(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close releases resources.
	Close() error
}

// MemoryStore keeps the log in an append-only slice.
// Data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make([]Event, 0, 1024)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep the slice timestamp-ordered; a late timestamp is rare so the
	// insertion point is almost always the end.
	i := len(s.events)
	for i > 0 && s.events[i-1].Timestamp.After(e.Timestamp) {
		i--
	}
	if i == len(s.events) {
		s.events = append(s.events, *e)
		return nil
	}
	s.events = append(s.events, Event{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = *e
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Event, 0, min(f.Limit, 64))
	skipped := 0
	for i := len(s.events) - 1; i >= 0; i-- {
		e := &s.events[i]
		if !f.Matches(e) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		results = append(results, *e)
		if f.Limit > 0 && len(results) >= f.Limit {
			break
		}
	}
	return results, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for i := range s.events {
		if f.Matches(&s.events[i]) {
			n++
		}
	}
	return n, nil
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for i := range s.events {
		ts := s.events[i].Timestamp
		if ts.Before(start) {
			continue
		}
		if ts.After(end) {
			break
		}
		out = append(out, s.events[i])
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
