package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	"github.com/louisbranch/narrative-engine/internal/narrative/store"
	"github.com/louisbranch/narrative-engine/internal/narrative/store/memory"
	apperrors "github.com/louisbranch/narrative-engine/internal/platform/errors"
)

// corruptingStore wraps a memory.Store and forces GetState to report
// CodeCorruption, regardless of what was actually saved, until the next
// SaveState replaces the record -- standing in for a store whose on-disk
// record failed to decode.
type corruptingStore struct {
	store.StateStore
	corrupt bool
}

func (c *corruptingStore) GetState(ctx context.Context, storyID string) (*domain.CanonicalState, error) {
	if c.corrupt {
		return nil, apperrors.New(apperrors.CodeCorruption, "decode stored state: unexpected EOF")
	}
	return c.StateStore.GetState(ctx, storyID)
}

func (c *corruptingStore) SaveState(ctx context.Context, state *domain.CanonicalState) error {
	c.corrupt = false
	return c.StateStore.SaveState(ctx, state)
}

func TestGetStateAutoInitializesScaffold(t *testing.T) {
	m := New(memory.New(), nil)

	state, err := m.GetState(context.Background(), "story-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Meta.StoryID != "story-1" || state.Meta.Turn != 0 {
		t.Fatalf("expected fresh scaffold, got %+v", state.Meta)
	}
}

func TestApplyEventsAdvancesTurnAndCommits(t *testing.T) {
	st := memory.New()
	m := New(st, nil)
	ctx := context.Background()

	if _, err := m.GetState(ctx, "story-1"); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	evt := domain.Event{
		EventID: "evt-1",
		StoryID: "story-1",
		Turn:    3,
		Type:    domain.TypeTravel,
		Payload: domain.Payload{Travel: &domain.TravelPayload{CharacterID: "zhangfei", ToLocationID: "xuchang"}},
		StatePatch: domain.StatePatch{EntityUpdates: map[string]domain.EntityUpdate{
			"zhangfei": {EntityType: domain.EntityCharacter, Updates: map[string]any{"location_id": "xuchang"}},
		}},
	}

	state, err := m.ApplyEvents(ctx, "story-1", []domain.Event{evt}, nil)
	if err != nil {
		t.Fatalf("apply events: %v", err)
	}
	if state.Meta.Turn != 3 {
		t.Fatalf("expected turn to advance to 3, got %d", state.Meta.Turn)
	}
	if state.Meta.LastEventID != "evt-1" {
		t.Fatalf("expected last_event_id to be evt-1, got %s", state.Meta.LastEventID)
	}
	if state.Entities.Characters["zhangfei"].LocationID != "xuchang" {
		t.Fatalf("expected patch to be folded into committed state")
	}
	if _, ok := state.Entities.Locations["xuchang"]; !ok {
		t.Fatalf("expected referenced location to be reconciled")
	}

	committed, err := st.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get committed event: %v", err)
	}
	if committed.EventID != "evt-1" {
		t.Fatalf("expected committed event to round-trip")
	}
}

func TestApplyEventsMergesGateFixPatch(t *testing.T) {
	st := memory.New()
	m := New(st, nil)
	ctx := context.Background()
	m.GetState(ctx, "story-1")

	evt := domain.Event{
		EventID: "evt-travel",
		StoryID: "story-1",
		Turn:    1,
		Type:    domain.TypeTravel,
		Payload: domain.Payload{Travel: &domain.TravelPayload{CharacterID: "zhangfei", ToLocationID: "xuchang"}},
		StatePatch: domain.StatePatch{EntityUpdates: map[string]domain.EntityUpdate{
			"zhangfei": {EntityType: domain.EntityCharacter, Updates: map[string]any{"location_id": "xuchang"}},
		}},
	}
	fix := &domain.StatePatch{EntityUpdates: map[string]domain.EntityUpdate{
		"sword_001": {EntityType: domain.EntityItem, Updates: map[string]any{"location_id": "xuchang"}},
	}}

	state, err := m.ApplyEvents(ctx, "story-1", []domain.Event{evt}, fix)
	if err != nil {
		t.Fatalf("apply events: %v", err)
	}
	if state.Entities.Items["sword_001"].LocationID != "xuchang" {
		t.Fatalf("expected gate fix patch to be applied alongside event patches")
	}
}

func TestApplyEventsDuplicateEventIDFailsTurn(t *testing.T) {
	st := memory.New()
	m := New(st, nil)
	ctx := context.Background()
	m.GetState(ctx, "story-1")

	evt := domain.Event{
		EventID: "evt-dup", StoryID: "story-1", Turn: 1, Type: domain.TypeOther,
		Payload: domain.Payload{Other: map[string]any{"note": "x"}},
	}
	if _, err := m.ApplyEvents(ctx, "story-1", []domain.Event{evt}, nil); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := m.ApplyEvents(ctx, "story-1", []domain.Event{evt}, nil); err != store.ErrDuplicateEventID {
		t.Fatalf("expected ErrDuplicateEventID, got %v", err)
	}
}

func TestApplyEventsSerializesPerStory(t *testing.T) {
	st := memory.New()
	m := New(st, nil)
	ctx := context.Background()
	m.GetState(ctx, "story-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			evt := domain.Event{
				EventID: eventID(i), StoryID: "story-1", Turn: i, Type: domain.TypeOther,
				Payload: domain.Payload{Other: map[string]any{"note": "x"}},
			}
			m.ApplyEvents(ctx, "story-1", []domain.Event{evt}, nil)
		}(i)
	}
	wg.Wait()

	state, err := st.GetState(ctx, "story-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Meta.Turn != 19 {
		t.Fatalf("expected turn to settle at the max applied turn 19, got %d", state.Meta.Turn)
	}
}

func TestGetStateSelfHealsOnCorruption(t *testing.T) {
	base := memory.New()
	ctx := context.Background()
	seed := domain.NewState("story-1", time.Now().UTC())
	seed.Meta.Turn = 7
	if err := base.SaveState(ctx, seed); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	cs := &corruptingStore{StateStore: base, corrupt: true}
	m := New(cs, nil)

	state, err := m.GetState(ctx, "story-1")
	if err != nil {
		t.Fatalf("expected corruption to self-heal, got error: %v", err)
	}
	if state.Meta.Turn != 0 {
		t.Fatalf("expected a fresh scaffold reset to turn 0, got %d", state.Meta.Turn)
	}
}

func eventID(i int) string {
	const hex = "0123456789abcdef"
	return "evt-" + string(hex[i%16]) + string(hex[(i/16)%16])
}
