package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/repsense/internal/domain/model"
)

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]model.RepEvent
	ids      map[string]struct{}
	closed   bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]model.RepEvent),
		ids:      make(map[string]struct{}),
	}
}

// Append stores ev.
func (s *MemoryStore) Append(_ context.Context, ev model.RepEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, dup := s.ids[ev.ID]; dup {
		return nil
	}
	s.ids[ev.ID] = struct{}{}
	s.sessions[ev.SessionID] = append(s.sessions[ev.SessionID], ev)
	return nil
}

// History returns a copy of the session's events.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]model.RepEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	out := append([]model.RepEvent(nil), s.sessions[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Count < out[j].Count
	})
	return out, nil
}

// Totals returns the number of stored reps per class.
func (s *MemoryStore) Totals(_ context.Context, sessionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	totals := make(map[string]int)
	for _, ev := range s.sessions[sessionID] {
		totals[ev.ClassName]++
	}
	return totals, nil
}

// Close releases the stored events.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sessions = nil
	s.ids = nil
	return nil
}
