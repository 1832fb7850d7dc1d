package extractor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
)

const promptPreamble = `You are the narrative event extractor for an interactive fiction engine.
Given the current world state and an assistant's narrative draft, extract every
discrete fact the draft asserts as a structured list of events plus a state
patch for each. If the draft is too ambiguous to extract safely, return
open_questions instead of guessing. Respond with JSON only, matching the
schema below.`

const extractionSchemaJSON = `{
  "events": [{
    "turn": "int", "time": {"label": "string", "order": "int"},
    "where": {"location_id": "string"}, "who": {"actors": ["string"], "witnesses": ["string"]},
    "type": "OWNERSHIP_CHANGE|DEATH|REVIVAL|TRAVEL|FACTION_CHANGE|QUEST_START|QUEST_COMPLETE|QUEST_FAIL|ITEM_CREATE|ITEM_DESTROY|TIME_ADVANCE|RELATIONSHIP_CHANGE|OTHER",
    "summary": "string", "payload": {"...": "one variant matching type"},
    "state_patch": {"entity_updates": {}, "time_update": null, "quest_updates": [], "constraint_additions": [], "player_updates": null}
  }],
  "open_questions": ["string"]
}`

const workedExamples = `Example 1 (ownership change):
{"events": [{"type": "OWNERSHIP_CHANGE", "summary": "Zhang Fei hands the blade to Guan Yu.",
  "payload": {"ownership_change": {"item_id": "sword_001", "old_owner_id": "zhangfei", "new_owner_id": "guanyu"}},
  "state_patch": {"entity_updates": {"sword_001": {"entity_type": "item", "updates": {"owner_id": "guanyu"}}}}}]}

Example 2 (travel):
{"events": [{"type": "TRAVEL", "summary": "Liu Bei rides north to Xuchang.",
  "payload": {"travel": {"character_id": "liubei", "from_location_id": "luoyang", "to_location_id": "xuchang"}},
  "state_patch": {"entity_updates": {"liubei": {"entity_type": "character", "updates": {"location_id": "xuchang"}}}}}]}`

// buildSystemPrompt assembles the fixed preamble, the <=20-line state
// summary, and the schema plus worked examples per §4.2 step 1.
func buildSystemPrompt(state *domain.CanonicalState) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nCurrent state summary:\n")
	b.WriteString(stateSummary(state))
	b.WriteString("\n\nOutput schema:\n")
	b.WriteString(extractionSchemaJSON)
	b.WriteString("\n\n")
	b.WriteString(workedExamples)
	return b.String()
}

// stateSummary renders the at-most-20-line digest §4.2 step 1 requires:
// time, player location, party, key items, top ten characters, top ten
// items, and the immutable constraint count.
func stateSummary(state *domain.CanonicalState) string {
	if state == nil {
		return "(no state yet -- this is the story's first turn)"
	}

	lines := make([]string, 0, 20)
	lines = append(lines, fmt.Sprintf("time: %s (order %d)", state.Time.Anchor.Label, state.Time.Anchor.Order))
	lines = append(lines, fmt.Sprintf("player: %s at %s, party=%s", state.Player.ID, state.Player.LocationID, strings.Join(state.Player.Party, ",")))
	lines = append(lines, fmt.Sprintf("player inventory: %s", strings.Join(state.Player.Inventory, ",")))

	characterIDs := sortedKeys(state.Entities.Characters)
	if len(characterIDs) > 10 {
		characterIDs = characterIDs[:10]
	}
	for _, id := range characterIDs {
		c := state.Entities.Characters[id]
		lines = append(lines, fmt.Sprintf("character %s: alive=%t location=%s faction=%s", id, c.Alive, c.LocationID, c.FactionID))
	}

	itemIDs := sortedKeys(state.Entities.Items)
	if len(itemIDs) > 10 {
		itemIDs = itemIDs[:10]
	}
	for _, id := range itemIDs {
		it := state.Entities.Items[id]
		lines = append(lines, fmt.Sprintf("item %s: owner=%s unique=%t", id, it.OwnerID, it.Unique))
	}

	lines = append(lines, fmt.Sprintf("immutable constraints: %d", len(state.Constraints.Items)))

	if len(lines) > 20 {
		lines = lines[:20]
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
