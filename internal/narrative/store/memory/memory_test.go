package memory

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	"github.com/louisbranch/narrative-engine/internal/narrative/store"
)

func TestGetStateNotFound(t *testing.T) {
	s := New()
	_, err := s.GetState(context.Background(), "unknown")
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommitTurnAtomicWithGetState(t *testing.T) {
	s := New()
	state := domain.NewState("story-1", time.Unix(0, 0))
	state.Meta.Turn = 1
	events := []domain.Event{{EventID: "evt_1_0_aaaa", StoryID: "story-1", Turn: 1, Time: domain.TimeAnchor{Order: 1}}}

	if err := s.CommitTurn(context.Background(), state, events); err != nil {
		t.Fatalf("commit turn: %v", err)
	}

	got, err := s.GetState(context.Background(), "story-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got.Meta.Turn != 1 {
		t.Fatalf("expected turn 1, got %d", got.Meta.Turn)
	}

	evt, err := s.GetEvent(context.Background(), "evt_1_0_aaaa")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if evt.StoryID != "story-1" {
		t.Fatalf("expected story-1, got %q", evt.StoryID)
	}
}

func TestCommitTurnDuplicateEventIDFailsWholeTurn(t *testing.T) {
	s := New()
	state := domain.NewState("story-1", time.Unix(0, 0))
	events := []domain.Event{{EventID: "evt_dup", StoryID: "story-1"}}

	if err := s.CommitTurn(context.Background(), state, events); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	state2 := domain.NewState("story-1", time.Unix(0, 0))
	state2.Meta.Turn = 99
	if err := s.CommitTurn(context.Background(), state2, events); err != store.ErrDuplicateEventID {
		t.Fatalf("expected ErrDuplicateEventID, got %v", err)
	}

	got, err := s.GetState(context.Background(), "story-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got.Meta.Turn == 99 {
		t.Fatalf("expected rejected turn to leave state unchanged")
	}
}

func TestListEventsByTurnOrderedByTimeOrder(t *testing.T) {
	s := New()
	state := domain.NewState("story-1", time.Unix(0, 0))
	events := []domain.Event{
		{EventID: "evt_a", StoryID: "story-1", Turn: 1, Time: domain.TimeAnchor{Order: 3}},
		{EventID: "evt_b", StoryID: "story-1", Turn: 1, Time: domain.TimeAnchor{Order: 1}},
		{EventID: "evt_c", StoryID: "story-1", Turn: 2, Time: domain.TimeAnchor{Order: 2}},
	}
	if err := s.CommitTurn(context.Background(), state, events); err != nil {
		t.Fatalf("commit turn: %v", err)
	}

	got, err := s.ListEventsByTurn(context.Background(), "story-1", 1)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "evt_b" || got[1].EventID != "evt_a" {
		t.Fatalf("expected [evt_b, evt_a], got %+v", got)
	}
}

func TestListRecentEventsDescending(t *testing.T) {
	s := New()
	state := domain.NewState("story-1", time.Unix(0, 0))
	events := []domain.Event{
		{EventID: "evt_a", StoryID: "story-1", Time: domain.TimeAnchor{Order: 1}},
		{EventID: "evt_b", StoryID: "story-1", Time: domain.TimeAnchor{Order: 2}},
		{EventID: "evt_c", StoryID: "story-1", Time: domain.TimeAnchor{Order: 3}},
	}
	if err := s.CommitTurn(context.Background(), state, events); err != nil {
		t.Fatalf("commit turn: %v", err)
	}

	got, err := s.ListRecentEvents(context.Background(), "story-1", 2, 0)
	if err != nil {
		t.Fatalf("list recent events: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "evt_c" || got[1].EventID != "evt_b" {
		t.Fatalf("expected [evt_c, evt_b], got %+v", got)
	}
}
