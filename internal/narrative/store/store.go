// Package store defines the StateStore contract: durable storage of one
// CanonicalState per story plus its append-only event log.
package store

import (
	"context"

	apperrors "github.com/louisbranch/narrative-engine/internal/platform/errors"
	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
)

// ErrNotFound indicates a requested state or event does not exist.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrDuplicateEventID indicates append_event was called with an
// event_id already present in the log.
var ErrDuplicateEventID = apperrors.New(apperrors.CodeDuplicateEventID, "event id already exists")

// StateStore is the durable, crash-safe home of canonical states and
// their event logs (§4.1). Implementations must be safe for concurrent
// readers; the State Manager enforces a single writer per story via its
// own mutation lock, so StateStore itself need not serialize writers.
type StateStore interface {
	// GetState returns the current state for story_id, or ErrNotFound if
	// the story has never been touched.
	GetState(ctx context.Context, storyID string) (*domain.CanonicalState, error)

	// SaveState replaces the entire state record and appends no events. A
	// turn's state write and event appends go through CommitTurn as a
	// single atomic unit.
	SaveState(ctx context.Context, state *domain.CanonicalState) error

	// CommitTurn persists state and appends events as one atomic unit:
	// no partially-applied turn is ever observable (§4.1's storage
	// contract). Fails with ErrDuplicateEventID, and commits nothing, if
	// any event's id already exists in the log.
	CommitTurn(ctx context.Context, state *domain.CanonicalState, events []domain.Event) error

	// GetEvent returns a single event by id, or ErrNotFound.
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)

	// ListEventsByTurn returns a story's events for one turn, ordered by
	// time.order ascending.
	ListEventsByTurn(ctx context.Context, storyID string, turn int) ([]domain.Event, error)

	// ListEventsByTimeRange returns events with time.order within
	// [minOrder, maxOrder], ordered ascending. A nil bound is open on
	// that side.
	ListEventsByTimeRange(ctx context.Context, storyID string, minOrder, maxOrder *int64) ([]domain.Event, error)

	// ListRecentEvents returns up to limit events starting at offset,
	// ordered by time.order descending.
	ListRecentEvents(ctx context.Context, storyID string, limit, offset int) ([]domain.Event, error)

	// Close releases any resources held by the store.
	Close() error
}
