// Package memory provides an in-memory StateStore for tests and
// single-process embedding, grounded on the teacher's
// sync.Mutex-guarded map-of-slices event journal.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	"github.com/louisbranch/narrative-engine/internal/narrative/store"
)

// Store is an in-memory StateStore. The zero value is not usable; use
// New.
type Store struct {
	mu     sync.RWMutex
	states map[string]*domain.CanonicalState
	events map[string][]domain.Event // storyID -> events, append order
	byID   map[string]*domain.Event  // eventID -> event, for GetEvent
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		states: make(map[string]*domain.CanonicalState),
		events: make(map[string][]domain.Event),
		byID:   make(map[string]*domain.Event),
	}
}

// GetState returns the current state for storyID, or store.ErrNotFound.
func (s *Store) GetState(ctx context.Context, storyID string) (*domain.CanonicalState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[storyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return state.Clone(), nil
}

// SaveState replaces the state record for its story_id.
func (s *Store) SaveState(ctx context.Context, state *domain.CanonicalState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.Meta.StoryID] = state.Clone()
	return nil
}

// CommitTurn saves state and appends events as a single critical
// section, matching the atomicity contract of §4.1.
func (s *Store) CommitTurn(ctx context.Context, state *domain.CanonicalState, events []domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range events {
		if _, exists := s.byID[evt.EventID]; exists {
			return store.ErrDuplicateEventID
		}
	}

	s.states[state.Meta.StoryID] = state.Clone()
	for _, evt := range events {
		s.events[state.Meta.StoryID] = append(s.events[state.Meta.StoryID], evt)
		stored := evt
		s.byID[evt.EventID] = &stored
	}
	return nil
}

// GetEvent returns a single event by id, or store.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.byID[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *evt
	return &copied, nil
}

// ListEventsByTurn returns a story's events for one turn ordered by
// time.order ascending.
func (s *Store) ListEventsByTurn(ctx context.Context, storyID string, turn int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, evt := range s.events[storyID] {
		if evt.Turn == turn {
			out = append(out, evt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Order < out[j].Time.Order })
	return out, nil
}

// ListEventsByTimeRange returns events with time.order within
// [minOrder, maxOrder], ordered ascending.
func (s *Store) ListEventsByTimeRange(ctx context.Context, storyID string, minOrder, maxOrder *int64) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, evt := range s.events[storyID] {
		if minOrder != nil && evt.Time.Order < *minOrder {
			continue
		}
		if maxOrder != nil && evt.Time.Order > *maxOrder {
			continue
		}
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Order < out[j].Time.Order })
	return out, nil
}

// ListRecentEvents returns up to limit events starting at offset,
// ordered by time.order descending.
func (s *Store) ListRecentEvents(ctx context.Context, storyID string, limit, offset int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := append([]domain.Event(nil), s.events[storyID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].Time.Order > all[j].Time.Order })

	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
