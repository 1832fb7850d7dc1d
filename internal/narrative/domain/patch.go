package domain

import (
	"encoding/json"
	"fmt"
)

// EntityType selects which of the four entity mappings an EntityUpdate
// targets.
type EntityType string

const (
	EntityCharacter EntityType = "character"
	EntityItem      EntityType = "item"
	EntityLocation  EntityType = "location"
	EntityFaction   EntityType = "faction"
)

// EntityUpdate is a sparse overlay for one entity. Updates is a shallow
// merge over the target's fields: a JSON-null value deletes the field, a
// missing field is left untouched, and targeting an id with no existing
// entity creates one.
type EntityUpdate struct {
	EntityType EntityType     `json:"entity_type"`
	Updates    map[string]any `json:"updates"`
}

// QuestUpdate moves a quest between the active and completed buckets, or
// creates it if it doesn't exist yet.
type QuestUpdate struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PlayerUpdate overlays the Player record. Inventory uses set semantics
// (add/remove by id); LocationID and Party are wholesale replacements
// when present.
type PlayerUpdate struct {
	LocationID      *string  `json:"location_id,omitempty"`
	Party           []string `json:"party,omitempty"`
	InventoryAdd    []string `json:"inventory_add,omitempty"`
	InventoryRemove []string `json:"inventory_remove,omitempty"`
}

// StatePatch is the sparse overlay an Event (or a gate-generated fix)
// applies to a CanonicalState. Patches are additive: unset fields never
// touch the target, and state_patch must be non-empty for traceability
// (§3) -- see IsEmpty.
type StatePatch struct {
	EntityUpdates       map[string]EntityUpdate `json:"entity_updates,omitempty"`
	TimeUpdate          *TimeAnchor             `json:"time_update,omitempty"`
	QuestUpdates        []QuestUpdate           `json:"quest_updates,omitempty"`
	ConstraintAdditions []Constraint            `json:"constraint_additions,omitempty"`
	PlayerUpdates       *PlayerUpdate           `json:"player_updates,omitempty"`
}

// IsEmpty reports whether the patch carries no overlay at all.
func (p StatePatch) IsEmpty() bool {
	return len(p.EntityUpdates) == 0 &&
		p.TimeUpdate == nil &&
		len(p.QuestUpdates) == 0 &&
		len(p.ConstraintAdditions) == 0 &&
		p.PlayerUpdates == nil
}

// Apply folds patch into state in place and returns a list of
// referential-integrity self-heal warnings (synthesized placeholder
// locations, per §4.1/§4.4). The same function backs both the Gate's
// projection fold (over a Clone) and the State Manager's real commit, so
// a turn that PASSes folds identically when committed (§4.4's patch
// application order note).
func Apply(state *CanonicalState, patch StatePatch) ([]string, error) {
	for id, upd := range patch.EntityUpdates {
		if err := applyEntityUpdate(state, id, upd); err != nil {
			return nil, fmt.Errorf("apply entity update %s: %w", id, err)
		}
	}

	if patch.TimeUpdate != nil {
		state.Time.Anchor = *patch.TimeUpdate
	}

	for _, qu := range patch.QuestUpdates {
		applyQuestUpdate(&state.Quests, qu)
	}

	for _, c := range patch.ConstraintAdditions {
		addConstraint(&state.Constraints, c)
	}

	if patch.PlayerUpdates != nil {
		applyPlayerUpdate(&state.Player, *patch.PlayerUpdates)
	}

	return reconcileReferences(state), nil
}

func applyEntityUpdate(state *CanonicalState, id string, upd EntityUpdate) error {
	switch upd.EntityType {
	case EntityCharacter:
		merged, err := mergeFields(state.Entities.Characters[id], upd.Updates)
		if err != nil {
			return err
		}
		state.Entities.Characters[id] = merged
	case EntityItem:
		merged, err := mergeFields(state.Entities.Items[id], upd.Updates)
		if err != nil {
			return err
		}
		state.Entities.Items[id] = merged
	case EntityLocation:
		merged, err := mergeFields(state.Entities.Locations[id], upd.Updates)
		if err != nil {
			return err
		}
		state.Entities.Locations[id] = merged
	case EntityFaction:
		merged, err := mergeFields(state.Entities.Factions[id], upd.Updates)
		if err != nil {
			return err
		}
		state.Entities.Factions[id] = merged
	default:
		return fmt.Errorf("unrecognized entity_type %q", upd.EntityType)
	}
	return nil
}

// mergeFields round-trips existing through JSON, overlays updates with
// null-deletes-missing-untouched semantics, and decodes the result back
// into existing's type. The blob representation (§9 design note) makes
// this the simplest correct way to shallow-merge a handful of
// differently-shaped entity structs without four bespoke merge
// functions.
func mergeFields[T any](existing T, updates map[string]any) (T, error) {
	var zero T
	raw, err := json.Marshal(existing)
	if err != nil {
		return zero, err
	}
	merged := map[string]any{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return zero, err
	}
	for k, v := range updates {
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}
	buf, err := json.Marshal(merged)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(buf, &out); err != nil {
		return zero, err
	}
	return out, nil
}

func applyQuestUpdate(quests *Quests, qu QuestUpdate) {
	removeByID := func(list []Quest, id string) []Quest {
		out := list[:0:0]
		for _, q := range list {
			if q.ID != id {
				out = append(out, q)
			}
		}
		return out
	}

	quest := Quest{ID: qu.ID, Title: qu.Title, Status: qu.Status, Metadata: qu.Metadata}
	for _, q := range quests.Active {
		if q.ID == qu.ID && qu.Title == "" {
			quest.Title = q.Title
		}
	}
	for _, q := range quests.Completed {
		if q.ID == qu.ID && qu.Title == "" {
			quest.Title = q.Title
		}
	}

	quests.Active = removeByID(quests.Active, qu.ID)
	quests.Completed = removeByID(quests.Completed, qu.ID)

	if qu.Status == "active" {
		quests.Active = append(quests.Active, quest)
		return
	}
	// "completed", "failed", or any other terminal status retires the
	// quest into the completed bucket; the data model has no third
	// bucket (§3).
	quests.Completed = append(quests.Completed, quest)
}

func addConstraint(constraints *Constraints, c Constraint) {
	for _, existing := range constraints.Items {
		if existing.Equal(c) {
			return
		}
	}
	constraints.Items = append(constraints.Items, c)
	if c.Kind == ConstraintUniqueItem && c.ItemID != "" {
		if constraints.UniqueItemIDs == nil {
			constraints.UniqueItemIDs = map[string]struct{}{}
		}
		constraints.UniqueItemIDs[c.ItemID] = struct{}{}
	}
}

func applyPlayerUpdate(player *Player, upd PlayerUpdate) {
	if upd.LocationID != nil {
		player.LocationID = *upd.LocationID
	}
	if upd.Party != nil {
		player.Party = append([]string(nil), upd.Party...)
	}
	if len(upd.InventoryAdd) > 0 {
		have := map[string]struct{}{}
		for _, id := range player.Inventory {
			have[id] = struct{}{}
		}
		for _, id := range upd.InventoryAdd {
			if _, ok := have[id]; !ok {
				player.Inventory = append(player.Inventory, id)
				have[id] = struct{}{}
			}
		}
	}
	if len(upd.InventoryRemove) > 0 {
		remove := map[string]struct{}{}
		for _, id := range upd.InventoryRemove {
			remove[id] = struct{}{}
		}
		kept := player.Inventory[:0:0]
		for _, id := range player.Inventory {
			if _, drop := remove[id]; !drop {
				kept = append(kept, id)
			}
		}
		player.Inventory = kept
	}
}

// reconcileReferences synthesizes placeholder Locations for any
// location_id referenced by the player or an entity but not present in
// the entities map (§4.1's self-healing rule, invoked here per §4.4
// during apply_events). It never synthesizes characters, items, or
// factions -- only locations are self-healed.
func reconcileReferences(state *CanonicalState) []string {
	var warnings []string

	heal := func(locationID string) {
		if state.EnsureLocation(locationID) {
			warnings = append(warnings, fmt.Sprintf("synthesized placeholder location %q", locationID))
		}
	}

	if state.Player.LocationID != "" {
		heal(state.Player.LocationID)
	}
	for _, c := range state.Entities.Characters {
		if c.LocationID != "" {
			heal(c.LocationID)
		}
	}
	for _, it := range state.Entities.Items {
		if it.LocationID != "" {
			heal(it.LocationID)
		}
	}

	return warnings
}
