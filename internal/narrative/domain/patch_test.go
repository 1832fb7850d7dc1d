package domain

import (
	"testing"
	"time"
)

func newTestState() *CanonicalState {
	state := NewState("story-1", time.Unix(0, 0))
	state.Entities.Characters["caocao"] = Character{Name: "Cao Cao", Alive: true, LocationID: "luoyang"}
	state.Entities.Locations["luoyang"] = Location{Name: "Luoyang"}
	state.Entities.Items["sword_001"] = Item{Name: "Sword", Unique: true, OwnerID: "caocao", LocationID: "luoyang"}
	return state
}

func TestApplyEntityUpdateOwnershipChange(t *testing.T) {
	state := newTestState()
	patch := StatePatch{
		EntityUpdates: map[string]EntityUpdate{
			"sword_001": {
				EntityType: EntityItem,
				Updates:    map[string]any{"owner_id": "player_001"},
			},
		},
	}

	if _, err := Apply(state, patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := state.Entities.Items["sword_001"].OwnerID; got != "player_001" {
		t.Fatalf("expected owner_id player_001, got %q", got)
	}
	if got := state.Entities.Items["sword_001"].Name; got != "Sword" {
		t.Fatalf("expected untouched field Name preserved, got %q", got)
	}
}

func TestApplyEntityUpdateNullDeletesField(t *testing.T) {
	state := newTestState()
	patch := StatePatch{
		EntityUpdates: map[string]EntityUpdate{
			"caocao": {
				EntityType: EntityCharacter,
				Updates:    map[string]any{"faction_id": nil},
			},
		},
	}
	state.Entities.Characters["caocao"] = Character{Name: "Cao Cao", Alive: true, LocationID: "luoyang", FactionID: "wei"}

	if _, err := Apply(state, patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := state.Entities.Characters["caocao"].FactionID; got != "" {
		t.Fatalf("expected faction_id cleared, got %q", got)
	}
}

func TestApplyEntityUpdateCreatesNewEntity(t *testing.T) {
	state := newTestState()
	patch := StatePatch{
		EntityUpdates: map[string]EntityUpdate{
			"xuchang": {
				EntityType: EntityLocation,
				Updates:    map[string]any{"name": "Xuchang"},
			},
		},
	}

	if _, err := Apply(state, patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := state.Entities.Locations["xuchang"]; !ok {
		t.Fatalf("expected xuchang location to be created")
	}
}

func TestApplyTimeUpdateReplacesAnchor(t *testing.T) {
	state := newTestState()
	state.Time.Anchor = TimeAnchor{Label: "day 1", Order: 1}
	patch := StatePatch{TimeUpdate: &TimeAnchor{Label: "day 2", Order: 2}}

	if _, err := Apply(state, patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.Time.Anchor.Order != 2 || state.Time.Anchor.Label != "day 2" {
		t.Fatalf("expected anchor replaced wholesale, got %+v", state.Time.Anchor)
	}
}

func TestApplyQuestUpdateLifecycle(t *testing.T) {
	state := newTestState()
	start := StatePatch{QuestUpdates: []QuestUpdate{{ID: "q1", Title: "Find the seal", Status: "active"}}}
	if _, err := Apply(state, start); err != nil {
		t.Fatalf("apply start: %v", err)
	}
	if len(state.Quests.Active) != 1 || state.Quests.Active[0].ID != "q1" {
		t.Fatalf("expected q1 active, got %+v", state.Quests)
	}

	complete := StatePatch{QuestUpdates: []QuestUpdate{{ID: "q1", Status: "completed"}}}
	if _, err := Apply(state, complete); err != nil {
		t.Fatalf("apply complete: %v", err)
	}
	if len(state.Quests.Active) != 0 {
		t.Fatalf("expected q1 removed from active")
	}
	if len(state.Quests.Completed) != 1 || state.Quests.Completed[0].Title != "Find the seal" {
		t.Fatalf("expected q1 completed with title preserved, got %+v", state.Quests.Completed)
	}
}

func TestApplyConstraintAdditionsDedup(t *testing.T) {
	state := newTestState()
	c := Constraint{Kind: ConstraintUniqueItem, ItemID: "sword_001"}
	patch := StatePatch{ConstraintAdditions: []Constraint{c, c}}

	if _, err := Apply(state, patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(state.Constraints.Items) != 1 {
		t.Fatalf("expected duplicate constraint deduped, got %d", len(state.Constraints.Items))
	}
	if _, ok := state.Constraints.UniqueItemIDs["sword_001"]; !ok {
		t.Fatalf("expected sword_001 indexed as a unique item")
	}
}

func TestApplyPlayerUpdateInventorySetSemantics(t *testing.T) {
	state := newTestState()
	state.Player.Inventory = []string{"torch"}
	patch := StatePatch{PlayerUpdates: &PlayerUpdate{
		InventoryAdd:    []string{"sword_001", "torch"},
		InventoryRemove: []string{"torch"},
	}}

	if _, err := Apply(state, patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(state.Player.Inventory) != 1 || state.Player.Inventory[0] != "sword_001" {
		t.Fatalf("expected inventory [sword_001], got %v", state.Player.Inventory)
	}
}

func TestApplyReconcilesMissingLocation(t *testing.T) {
	state := newTestState()
	patch := StatePatch{
		EntityUpdates: map[string]EntityUpdate{
			"caocao": {
				EntityType: EntityCharacter,
				Updates:    map[string]any{"location_id": "xuchang"},
			},
		},
	}

	warnings, err := Apply(state, patch)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one self-heal warning, got %v", warnings)
	}
	if _, ok := state.Entities.Locations["xuchang"]; !ok {
		t.Fatalf("expected placeholder location xuchang synthesized")
	}
}

func TestIsEmpty(t *testing.T) {
	var p StatePatch
	if !p.IsEmpty() {
		t.Fatalf("expected zero-value patch to be empty")
	}
	p.PlayerUpdates = &PlayerUpdate{}
	if p.IsEmpty() {
		t.Fatalf("expected patch with player_updates to be non-empty")
	}
}
