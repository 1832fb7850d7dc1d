package gate

import (
	"fmt"
	"strings"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	"github.com/louisbranch/narrative-engine/internal/platform/errors/i18n"
)

// ruleFunc evaluates one rule against (state, projected state, the
// turn's candidate events, and the draft prose), returning zero or more
// violations. Rules are pure: they never mutate their arguments.
type ruleFunc func(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation

var rules = []ruleFunc{
	ruleR1UniqueItemSingleOwner,
	ruleR2ItemLocationMatchesOwner,
	ruleR3DeadCannotActOrRevive,
	ruleR4AliveFactionRequireMatchingType,
	ruleR5LocationChangeRequiresTravel,
	ruleR6NoCharacterInTwoLocations,
	ruleR7TimeOrderNonDecreasing,
	ruleR8ImmutableConstraintsHold,
	ruleR9FactionRelationshipTraceable,
	ruleR10DraftFaithfulToCanon,
}

// ruleR1UniqueItemSingleOwner: a unique item has at most one owner
// across the turn's pending OWNERSHIP_CHANGE events.
func ruleR1UniqueItemSingleOwner(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	ownersByItem := map[string]map[string]struct{}{}
	for _, evt := range events {
		if evt.Type != domain.TypeOwnershipChange || evt.Payload.OwnershipChange == nil {
			continue
		}
		itemID := evt.Payload.OwnershipChange.ItemID
		item, ok := state.Entities.Items[itemID]
		if !ok {
			item = projected.Entities.Items[itemID]
		}
		if !item.Unique {
			continue
		}
		if ownersByItem[itemID] == nil {
			ownersByItem[itemID] = map[string]struct{}{}
		}
		ownersByItem[itemID][evt.Payload.OwnershipChange.NewOwnerID] = struct{}{}
	}

	var out []Violation
	for itemID, owners := range ownersByItem {
		if len(owners) <= 1 {
			continue
		}
		out = append(out, Violation{
			RuleID:    string(i18n.CodeRuleR1),
			Severity:  SeverityError,
			Fixable:   false,
			Message:   i18n.GetCatalog("en-US").Format(i18n.CodeRuleR1, map[string]string{"ItemName": itemName(state, itemID)}),
			EntityID:  itemID,
			Ambiguity: true,
		})
	}
	return out
}

// ruleR2ItemLocationMatchesOwner: after projection, an item's location
// must equal its character owner's location, or the owning location
// itself when owned by a location.
func ruleR2ItemLocationMatchesOwner(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	var out []Violation
	for itemID, item := range projected.Entities.Items {
		if item.OwnerID == "" {
			continue
		}
		if owner, ok := projected.Entities.Characters[item.OwnerID]; ok {
			if item.LocationID != owner.LocationID {
				fix := &domain.StatePatch{EntityUpdates: map[string]domain.EntityUpdate{
					itemID: {EntityType: domain.EntityItem, Updates: map[string]any{"location_id": owner.LocationID}},
				}}
				out = append(out, Violation{
					RuleID:       string(i18n.CodeRuleR2),
					Severity:     SeverityWarning,
					Fixable:      true,
					Message:      i18n.GetCatalog("en-US").Format(i18n.CodeRuleR2, map[string]string{"ItemName": itemName(state, itemID)}),
					EntityID:     itemID,
					SuggestedFix: fix,
				})
			}
			continue
		}
		if _, ok := projected.Entities.Locations[item.OwnerID]; ok && item.LocationID != item.OwnerID {
			fix := &domain.StatePatch{EntityUpdates: map[string]domain.EntityUpdate{
				itemID: {EntityType: domain.EntityItem, Updates: map[string]any{"location_id": item.OwnerID}},
			}}
			out = append(out, Violation{
				RuleID:       string(i18n.CodeRuleR2),
				Severity:     SeverityWarning,
				Fixable:      true,
				Message:      i18n.GetCatalog("en-US").Format(i18n.CodeRuleR2, map[string]string{"ItemName": itemName(state, itemID)}),
				EntityID:     itemID,
				SuggestedFix: fix,
			})
		}
	}
	return out
}

// ruleR3DeadCannotActOrRevive: a dead character may not act in any
// event other than DEATH/REVIVAL, and a patch reviving someone requires
// a REVIVAL event.
func ruleR3DeadCannotActOrRevive(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	var out []Violation
	for _, evt := range events {
		for _, actorID := range evt.Who.Actors {
			c, ok := state.Entities.Characters[actorID]
			if !ok || c.Alive {
				continue
			}
			if evt.Type == domain.TypeDeath || evt.Type == domain.TypeRevival {
				continue
			}
			out = append(out, Violation{
				RuleID:   string(i18n.CodeRuleR3),
				Severity: SeverityError,
				Fixable:  false,
				Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR3, map[string]string{"CharacterName": characterName(state, actorID)}),
				EntityID: actorID,
			})
		}

		for entityID, upd := range evt.StatePatch.EntityUpdates {
			alive, hasAlive := upd.Updates["alive"]
			if hasAlive && alive == true && evt.Type != domain.TypeRevival {
				out = append(out, Violation{
					RuleID:   string(i18n.CodeRuleR3),
					Severity: SeverityError,
					Fixable:  false,
					Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR3, map[string]string{"CharacterName": characterName(state, entityID)}),
					EntityID: entityID,
				})
			}
		}
	}
	return out
}

// ruleR4AliveFactionRequireMatchingType: a patch setting alive requires
// DEATH (false) or REVIVAL (true); a patch setting faction_id requires
// FACTION_CHANGE.
func ruleR4AliveFactionRequireMatchingType(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	var out []Violation
	for _, evt := range events {
		for entityID, upd := range evt.StatePatch.EntityUpdates {
			if alive, ok := upd.Updates["alive"]; ok {
				wantsDeath := alive == false && evt.Type != domain.TypeDeath
				wantsRevival := alive == true && evt.Type != domain.TypeRevival
				if wantsDeath || wantsRevival {
					out = append(out, Violation{
						RuleID:   string(i18n.CodeRuleR4),
						Severity: SeverityError,
						Fixable:  false,
						Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR4, map[string]string{"Field": "alive", "EntityName": characterName(state, entityID)}),
						EntityID: entityID,
					})
				}
			}
			if _, ok := upd.Updates["faction_id"]; ok && evt.Type != domain.TypeFactionChange {
				out = append(out, Violation{
					RuleID:   string(i18n.CodeRuleR4),
					Severity: SeverityError,
					Fixable:  false,
					Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR4, map[string]string{"Field": "faction_id", "EntityName": characterName(state, entityID)}),
					EntityID: entityID,
				})
			}
		}
	}
	return out
}

// ruleR5LocationChangeRequiresTravel: a character's location_id change
// in the projection requires a concurrent TRAVEL event naming them.
func ruleR5LocationChangeRequiresTravel(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	travelers := map[string]struct{}{}
	for _, evt := range events {
		if evt.Type == domain.TypeTravel && evt.Payload.Travel != nil {
			travelers[evt.Payload.Travel.CharacterID] = struct{}{}
		}
	}

	var out []Violation
	for _, evt := range events {
		for entityID, upd := range evt.StatePatch.EntityUpdates {
			if upd.EntityType != domain.EntityCharacter {
				continue
			}
			if _, ok := upd.Updates["location_id"]; !ok {
				continue
			}
			if _, traveled := travelers[entityID]; !traveled {
				out = append(out, Violation{
					RuleID:   string(i18n.CodeRuleR5),
					Severity: SeverityError,
					Fixable:  false,
					Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR5, map[string]string{"CharacterName": characterName(state, entityID)}),
					EntityID: entityID,
				})
			}
		}
	}
	return out
}

// ruleR6NoCharacterInTwoLocations: for each time.order, a character's
// final location_id must be unambiguous.
func ruleR6NoCharacterInTwoLocations(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	type key struct {
		order int64
		char  string
	}
	finalLocation := map[key]map[string]struct{}{}

	for _, evt := range events {
		for entityID, upd := range evt.StatePatch.EntityUpdates {
			if upd.EntityType != domain.EntityCharacter {
				continue
			}
			loc, ok := upd.Updates["location_id"]
			if !ok {
				continue
			}
			locStr, _ := loc.(string)
			k := key{order: evt.Time.Order, char: entityID}
			if finalLocation[k] == nil {
				finalLocation[k] = map[string]struct{}{}
			}
			finalLocation[k][locStr] = struct{}{}
		}
	}

	var out []Violation
	for k, locs := range finalLocation {
		if len(locs) <= 1 {
			continue
		}
		out = append(out, Violation{
			RuleID:   string(i18n.CodeRuleR6),
			Severity: SeverityError,
			Fixable:  false,
			Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR6, map[string]string{"CharacterName": characterName(state, k.char)}),
			EntityID: k.char,
		})
	}
	return out
}

// ruleR7TimeOrderNonDecreasing: every event's time.order must be at
// least the current state's anchor order, and monotone within the turn.
func ruleR7TimeOrderNonDecreasing(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	var out []Violation
	previous := state.Time.Anchor.Order
	for _, evt := range events {
		if evt.Time.Order < previous {
			out = append(out, Violation{
				RuleID:   string(i18n.CodeRuleR7),
				Severity: SeverityError,
				Fixable:  false,
				Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR7, map[string]string{"PreviousOrder": fmt.Sprintf("%d", previous), "NewOrder": fmt.Sprintf("%d", evt.Time.Order)}),
				EntityID: evt.EventID,
			})
			continue
		}
		previous = evt.Time.Order
	}
	return out
}

// ruleR8ImmutableConstraintsHold: every Constraint in state.Constraints
// must still hold in the projected state.
func ruleR8ImmutableConstraintsHold(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	var out []Violation
	for _, c := range state.Constraints.Items {
		if violatesConstraint(projected, c) {
			out = append(out, Violation{
				RuleID:    string(i18n.CodeRuleR8),
				Severity:  SeverityError,
				Fixable:   false,
				Message:   i18n.GetCatalog("en-US").Format(i18n.CodeRuleR8, map[string]string{"EntityName": constraintEntityName(state, c)}),
				EntityID:  constraintEntityID(c),
				Ambiguity: true,
			})
		}
	}
	for itemID := range state.Constraints.UniqueItemIDs {
		item, ok := projected.Entities.Items[itemID]
		if ok && !item.Unique {
			out = append(out, Violation{
				RuleID:    string(i18n.CodeRuleR8),
				Severity:  SeverityError,
				Fixable:   false,
				Message:   i18n.GetCatalog("en-US").Format(i18n.CodeRuleR8, map[string]string{"EntityName": itemName(state, itemID)}),
				EntityID:  itemID,
				Ambiguity: true,
			})
		}
	}
	return out
}

func violatesConstraint(projected *domain.CanonicalState, c domain.Constraint) bool {
	switch c.Kind {
	case domain.ConstraintEntityState:
		return !entityFieldMatches(projected, c.EntityID, c.Field, c.Value)
	case domain.ConstraintRelationship:
		// Relationship persistence has no dedicated projected-state
		// field to inspect; rule R9 covers traceability of changes, so
		// this kind never independently fires here.
		return false
	case domain.ConstraintUniqueItem:
		item, ok := projected.Entities.Items[c.ItemID]
		return ok && !item.Unique
	default:
		return false
	}
}

func entityFieldMatches(projected *domain.CanonicalState, entityID, field string, want any) bool {
	if c, ok := projected.Entities.Characters[entityID]; ok {
		switch field {
		case "alive":
			return c.Alive == want
		case "location_id":
			return c.LocationID == want
		case "faction_id":
			return c.FactionID == want
		}
	}
	if it, ok := projected.Entities.Items[entityID]; ok {
		switch field {
		case "owner_id":
			return it.OwnerID == want
		case "location_id":
			return it.LocationID == want
		}
	}
	return true
}

func constraintEntityID(c domain.Constraint) string {
	if c.EntityID != "" {
		return c.EntityID
	}
	return c.ItemID
}

func constraintEntityName(state *domain.CanonicalState, c domain.Constraint) string {
	return characterName(state, constraintEntityID(c))
}

// ruleR9FactionRelationshipTraceable: a FACTION_CHANGE event must carry
// payload.character_id; relationship changes noted in metadata require a
// RELATIONSHIP_CHANGE event.
func ruleR9FactionRelationshipTraceable(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	var out []Violation
	hasRelationshipChangeEvent := false
	for _, evt := range events {
		if evt.Type == domain.TypeRelationshipChange {
			hasRelationshipChangeEvent = true
		}
		if evt.Type == domain.TypeFactionChange {
			if evt.Payload.FactionChange == nil || evt.Payload.FactionChange.CharacterID == "" {
				out = append(out, Violation{
					RuleID:   string(i18n.CodeRuleR9),
					Severity: SeverityError,
					Fixable:  false,
					Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR9, map[string]string{"EntityName": evt.EventID}),
					EntityID: evt.EventID,
				})
			}
		}
	}

	for _, evt := range events {
		entityID, ok := relationshipChangeMetadataEntity(evt)
		if !ok || hasRelationshipChangeEvent {
			continue
		}
		out = append(out, Violation{
			RuleID:   string(i18n.CodeRuleR9),
			Severity: SeverityError,
			Fixable:  false,
			Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR9, map[string]string{"EntityName": characterName(state, entityID)}),
			EntityID: entityID,
		})
	}
	return out
}

// relationshipChangeMetadataEntity reports the entity id of the first
// EntityUpdate whose metadata patch carries a relationship_changes key,
// and whether one was found at all.
func relationshipChangeMetadataEntity(evt domain.Event) (string, bool) {
	for entityID, upd := range evt.StatePatch.EntityUpdates {
		raw, ok := upd.Updates["metadata"]
		if !ok {
			continue
		}
		meta, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := meta["relationship_changes"]; ok {
			return entityID, true
		}
	}
	return "", false
}

// ruleR10DraftFaithfulToCanon: a coarse contradiction scan between the
// draft prose and canonical facts. False positives are tolerable --
// they degrade to REWRITE rather than silent acceptance.
func ruleR10DraftFaithfulToCanon(state, projected *domain.CanonicalState, events []domain.Event, draft string) []Violation {
	var out []Violation
	lower := strings.ToLower(draft)

	for id, c := range state.Entities.Characters {
		name := strings.ToLower(c.Name)
		if name == "" || !strings.Contains(lower, name) {
			continue
		}
		if c.Alive && (strings.Contains(lower, name+" died") || strings.Contains(lower, name+" is dead")) {
			out = append(out, Violation{
				RuleID:   string(i18n.CodeRuleR10),
				Severity: SeverityError,
				Fixable:  false,
				Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR10, map[string]string{"EntityName": c.Name}),
				EntityID: id,
			})
		}
		if !c.Alive && (strings.Contains(lower, name+" speaks") || strings.Contains(lower, name+" says") || strings.Contains(lower, name+" is alive")) {
			out = append(out, Violation{
				RuleID:   string(i18n.CodeRuleR10),
				Severity: SeverityError,
				Fixable:  false,
				Message:  i18n.GetCatalog("en-US").Format(i18n.CodeRuleR10, map[string]string{"EntityName": c.Name}),
				EntityID: id,
			})
		}
	}
	return out
}

func characterName(state *domain.CanonicalState, id string) string {
	if c, ok := state.Entities.Characters[id]; ok && c.Name != "" {
		return c.Name
	}
	return id
}

func itemName(state *domain.CanonicalState, id string) string {
	if it, ok := state.Entities.Items[id]; ok && it.Name != "" {
		return it.Name
	}
	return id
}
