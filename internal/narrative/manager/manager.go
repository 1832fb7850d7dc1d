// Package manager implements the State Manager: the only component
// allowed to advance a story's canonical state, under a per-story
// mutation lock.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	"github.com/louisbranch/narrative-engine/internal/narrative/store"
	apperrors "github.com/louisbranch/narrative-engine/internal/platform/errors"
)

// Manager applies validated events to a story's canonical state and
// commits them through a StateStore, one story at a time.
type Manager struct {
	store  store.StateStore
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a Manager backed by the given StateStore.
func New(st store.StateStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, logger: logger, locks: make(map[string]*sync.Mutex)}
}

// lockFor returns the per-story_id mutex, creating it on first use.
// Registry growth is itself race-free: the outer mutex only ever
// guards the map, never the story lock's hold duration (grounded on
// journal.Memory's single-mutex-guarded stream map, generalized here
// to one lock per story so unrelated stories never block each other).
func (m *Manager) lockFor(storyID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[storyID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[storyID] = l
	}
	return l
}

// ApplyEvents implements apply_events (§4.4): fold each event's
// state_patch (and an optional gate-supplied fix patch) onto the
// story's current state in event order, advance turn/bookkeeping
// fields, reconcile referential integrity, and commit state plus
// events as one atomic unit. The per-story lock is held only for this
// call's duration -- never across the extractor's network call.
func (m *Manager) ApplyEvents(ctx context.Context, storyID string, events []domain.Event, fixPatch *domain.StatePatch) (*domain.CanonicalState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("apply_events requires at least one event")
	}

	lock := m.lockFor(storyID)
	lock.Lock()
	defer lock.Unlock()

	state, err := m.store.GetState(ctx, storyID)
	if err != nil {
		switch {
		case err == store.ErrNotFound:
			state = domain.NewState(storyID, time.Now().UTC())
		case apperrors.IsCode(err, apperrors.CodeCorruption):
			m.logger.WarnContext(ctx, "state manager self-heal: corrupted state reset to scaffold", "story_id", storyID, "error", err)
			state = domain.NewState(storyID, time.Now().UTC())
		default:
			return nil, err
		}
	}

	for _, evt := range events {
		warnings, err := domain.Apply(state, evt.StatePatch)
		if err != nil {
			return nil, fmt.Errorf("apply event %s: %w", evt.EventID, err)
		}
		m.logWarnings(ctx, storyID, evt.EventID, warnings)
	}

	if fixPatch != nil {
		warnings, err := domain.Apply(state, *fixPatch)
		if err != nil {
			return nil, fmt.Errorf("apply gate fix patch: %w", err)
		}
		m.logWarnings(ctx, storyID, "gate_fix", warnings)
	}

	maxTurn := state.Meta.Turn
	for _, evt := range events {
		if evt.Turn > maxTurn {
			maxTurn = evt.Turn
		}
	}
	state.Meta.Turn = maxTurn
	state.Meta.LastEventID = events[len(events)-1].EventID
	state.Meta.UpdatedAt = time.Now().UTC()

	if err := m.store.CommitTurn(ctx, state, events); err != nil {
		return nil, err
	}

	return state, nil
}

func (m *Manager) logWarnings(ctx context.Context, storyID, eventID string, warnings []string) {
	for _, w := range warnings {
		m.logger.WarnContext(ctx, "state manager self-heal", "story_id", storyID, "event_id", eventID, "warning", w)
	}
}

// GetState returns a story's current state, auto-initializing an empty
// scaffold on first touch rather than surfacing ErrNotFound (§4.1/§7's
// "unknown story_id is recoverable via auto-init"), and likewise resetting
// to a fresh scaffold when the stored record is corrupted beyond repair
// (§4.1/§7: "severe corruption causes initialization to the empty
// scaffold").
func (m *Manager) GetState(ctx context.Context, storyID string) (*domain.CanonicalState, error) {
	state, err := m.store.GetState(ctx, storyID)
	if err == nil {
		return state, nil
	}
	if err != store.ErrNotFound && !apperrors.IsCode(err, apperrors.CodeCorruption) {
		return nil, err
	}

	lock := m.lockFor(storyID)
	lock.Lock()
	defer lock.Unlock()

	state, err = m.store.GetState(ctx, storyID)
	if err == nil {
		return state, nil
	}
	if err != store.ErrNotFound && !apperrors.IsCode(err, apperrors.CodeCorruption) {
		return nil, err
	}
	if apperrors.IsCode(err, apperrors.CodeCorruption) {
		m.logger.WarnContext(ctx, "state manager self-heal: corrupted state reset to scaffold", "story_id", storyID, "error", err)
	}

	state = domain.NewState(storyID, time.Now().UTC())
	if err := m.store.SaveState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}
