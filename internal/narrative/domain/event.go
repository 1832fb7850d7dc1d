package domain

import (
	"fmt"
	"strings"
	"time"
)

// Type identifies the kind of fact an Event records.
type Type string

// Event types recognized by the Consistency Gate and State Manager.
const (
	TypeOwnershipChange    Type = "OWNERSHIP_CHANGE"
	TypeDeath              Type = "DEATH"
	TypeRevival            Type = "REVIVAL"
	TypeTravel             Type = "TRAVEL"
	TypeFactionChange      Type = "FACTION_CHANGE"
	TypeQuestStart         Type = "QUEST_START"
	TypeQuestComplete      Type = "QUEST_COMPLETE"
	TypeQuestFail          Type = "QUEST_FAIL"
	TypeItemCreate         Type = "ITEM_CREATE"
	TypeItemDestroy        Type = "ITEM_DESTROY"
	TypeTimeAdvance        Type = "TIME_ADVANCE"
	TypeRelationshipChange Type = "RELATIONSHIP_CHANGE"
	TypeOther              Type = "OTHER"
)

// IsValid reports whether t is one of the recognized event types.
func (t Type) IsValid() bool {
	switch t {
	case TypeOwnershipChange, TypeDeath, TypeRevival, TypeTravel, TypeFactionChange,
		TypeQuestStart, TypeQuestComplete, TypeQuestFail, TypeItemCreate, TypeItemDestroy,
		TypeTimeAdvance, TypeRelationshipChange, TypeOther:
		return true
	}
	return false
}

// Who names the characters involved in an event: those who acted, and
// those merely present to witness it.
type Who struct {
	Actors    []string `json:"actors,omitempty"`
	Witnesses []string `json:"witnesses,omitempty"`
}

// Where pins the location an event occurred at, when known.
type Where struct {
	LocationID string `json:"location_id,omitempty"`
}

// Evidence traces an event back to the draft text it was extracted from.
type Evidence struct {
	Source   string `json:"source"`
	TextSpan string `json:"text_span,omitempty"`
}

// Event is an immutable fact appended to a story's event log. Once
// committed it is never mutated or deleted.
type Event struct {
	EventID    string     `json:"event_id"`
	StoryID    string     `json:"story_id"`
	Turn       int        `json:"turn"`
	Time       TimeAnchor `json:"time"`
	Where      Where      `json:"where"`
	Who        Who        `json:"who"`
	Type       Type       `json:"type"`
	Summary    string     `json:"summary"`
	Payload    Payload    `json:"payload"`
	StatePatch StatePatch `json:"state_patch"`
	Evidence   Evidence   `json:"evidence"`
	CreatedAt  time.Time  `json:"created_at"`
}

// OwnershipChangePayload is the payload for OWNERSHIP_CHANGE events.
type OwnershipChangePayload struct {
	ItemID     string `json:"item_id"`
	OldOwnerID string `json:"old_owner_id,omitempty"`
	NewOwnerID string `json:"new_owner_id,omitempty"`
}

// DeathPayload is the payload for DEATH events.
type DeathPayload struct {
	CharacterID string `json:"character_id"`
}

// RevivalPayload is the payload for REVIVAL events.
type RevivalPayload struct {
	CharacterID string `json:"character_id"`
}

// TravelPayload is the payload for TRAVEL events.
type TravelPayload struct {
	CharacterID    string `json:"character_id"`
	FromLocationID string `json:"from_location_id,omitempty"`
	ToLocationID   string `json:"to_location_id"`
}

// FactionChangePayload is the payload for FACTION_CHANGE events.
type FactionChangePayload struct {
	CharacterID  string `json:"character_id"`
	OldFactionID string `json:"old_faction_id,omitempty"`
	NewFactionID string `json:"new_faction_id"`
}

// QuestPayload is the payload for QUEST_START, QUEST_COMPLETE, and
// QUEST_FAIL events.
type QuestPayload struct {
	QuestID string `json:"quest_id"`
}

// ItemPayload is the payload for ITEM_CREATE and ITEM_DESTROY events.
type ItemPayload struct {
	ItemID string `json:"item_id"`
}

// TimeAdvancePayload is the payload for TIME_ADVANCE events.
type TimeAdvancePayload struct {
	TimeAnchor TimeAnchor `json:"time_anchor"`
}

// RelationshipChangePayload is the payload for RELATIONSHIP_CHANGE events.
type RelationshipChangePayload struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Kind    string `json:"kind,omitempty"`
}

// Payload is a tagged variant over the payload shapes required by each
// Type (§3, §9A's "dynamic JSON payloads -> tagged variants" design
// note). Exactly one field is populated, selected by the sibling Event's
// Type; OTHER events carry a free-form map since they have no required
// keys. At rest, the State Store serializes the whole Event to JSON and
// treats the blob as opaque (§4.1) -- this struct is what the State
// Manager recovers it into.
type Payload struct {
	OwnershipChange    *OwnershipChangePayload    `json:"ownership_change,omitempty"`
	Death              *DeathPayload              `json:"death,omitempty"`
	Revival            *RevivalPayload            `json:"revival,omitempty"`
	Travel             *TravelPayload             `json:"travel,omitempty"`
	FactionChange      *FactionChangePayload      `json:"faction_change,omitempty"`
	Quest              *QuestPayload              `json:"quest,omitempty"`
	Item               *ItemPayload               `json:"item,omitempty"`
	TimeAdvance        *TimeAdvancePayload        `json:"time_advance,omitempty"`
	RelationshipChange *RelationshipChangePayload `json:"relationship_change,omitempty"`
	Other              map[string]any             `json:"other,omitempty"`
}

// requiredPayloadKeys lists, per event type, the non-nullable payload
// keys of the §3 payload-requirements table. ValidatePayload does not
// read this map; it checks the same keys on the typed payload fields.
var requiredPayloadKeys = map[Type][]string{
	TypeOwnershipChange:    {"item_id"},
	TypeDeath:              {"character_id"},
	TypeRevival:            {"character_id"},
	TypeTravel:             {"character_id", "to_location_id"},
	TypeFactionChange:      {"character_id", "new_faction_id"},
	TypeQuestStart:         {"quest_id"},
	TypeQuestComplete:      {"quest_id"},
	TypeQuestFail:          {"quest_id"},
	TypeItemCreate:         {"item_id"},
	TypeItemDestroy:        {"item_id"},
	TypeTimeAdvance:        {"time_anchor"},
	TypeRelationshipChange: {"subject", "object"},
}

// ValidatePayload checks that t's payload carries every key §3 requires
// for that type. OTHER events have no requirements.
func ValidatePayload(t Type, p Payload) error {
	switch t {
	case TypeOwnershipChange:
		if p.OwnershipChange == nil || strings.TrimSpace(p.OwnershipChange.ItemID) == "" {
			return fmt.Errorf("%s payload requires item_id", t)
		}
	case TypeDeath:
		if p.Death == nil || strings.TrimSpace(p.Death.CharacterID) == "" {
			return fmt.Errorf("%s payload requires character_id", t)
		}
	case TypeRevival:
		if p.Revival == nil || strings.TrimSpace(p.Revival.CharacterID) == "" {
			return fmt.Errorf("%s payload requires character_id", t)
		}
	case TypeTravel:
		if p.Travel == nil || strings.TrimSpace(p.Travel.CharacterID) == "" || strings.TrimSpace(p.Travel.ToLocationID) == "" {
			return fmt.Errorf("%s payload requires character_id and to_location_id", t)
		}
	case TypeFactionChange:
		if p.FactionChange == nil || strings.TrimSpace(p.FactionChange.CharacterID) == "" || strings.TrimSpace(p.FactionChange.NewFactionID) == "" {
			return fmt.Errorf("%s payload requires character_id and new_faction_id", t)
		}
	case TypeQuestStart, TypeQuestComplete, TypeQuestFail:
		if p.Quest == nil || strings.TrimSpace(p.Quest.QuestID) == "" {
			return fmt.Errorf("%s payload requires quest_id", t)
		}
	case TypeItemCreate, TypeItemDestroy:
		if p.Item == nil || strings.TrimSpace(p.Item.ItemID) == "" {
			return fmt.Errorf("%s payload requires item_id", t)
		}
	case TypeTimeAdvance:
		if p.TimeAdvance == nil {
			return fmt.Errorf("%s payload requires time_anchor", t)
		}
	case TypeRelationshipChange:
		if p.RelationshipChange == nil || strings.TrimSpace(p.RelationshipChange.Subject) == "" || strings.TrimSpace(p.RelationshipChange.Object) == "" {
			return fmt.Errorf("%s payload requires subject and object", t)
		}
	case TypeOther:
		// no required keys
	default:
		return fmt.Errorf("unrecognized event type %q", t)
	}
	return nil
}
