package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeDuplicateEventID     = "DUPLICATE_EVENT_ID"
	CodeCorruption           = "CORRUPTION"
	CodeExtractionTimeout    = "EXTRACTION_TIMEOUT"
	CodeExtractionParseError = "EXTRACTION_PARSE_ERROR"
	CodeValidationError      = "VALIDATION_ERROR"
	CodeInvariantViolation   = "INVARIANT_VIOLATION"
	CodeMalformedDraft       = "MALFORMED_DRAFT"
	CodeRuleR1               = "RULE_R1"
	CodeRuleR2               = "RULE_R2"
	CodeRuleR3               = "RULE_R3"
	CodeRuleR4               = "RULE_R4"
	CodeRuleR5               = "RULE_R5"
	CodeRuleR6               = "RULE_R6"
	CodeRuleR7               = "RULE_R7"
	CodeRuleR8               = "RULE_R8"
	CodeRuleR9               = "RULE_R9"
	CodeRuleR10              = "RULE_R10"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Store errors
		CodeNotFound:             "The requested story state was not found",
		CodeDuplicateEventID:     "Event {{.EventID}} has already been recorded",
		CodeCorruption:           "Stored state for story {{.StoryID}} was corrupted and has been reset",
		CodeExtractionTimeout:    "The narrative extractor did not respond in time",
		CodeExtractionParseError: "The narrative extractor's response could not be parsed",
		CodeValidationError:      "Candidate event {{.EventType}} failed schema validation: {{.Reason}}",
		CodeInvariantViolation:   "Applying turn {{.Turn}} would violate invariant {{.Invariant}}",
		CodeMalformedDraft:       "The narrative draft could not be processed",

		// Consistency gate rule citations, one per rule id.
		CodeRuleR1:  "Rule R1 violated: unique item '{{.ItemName}}' assigned to multiple owners. Which is canonical?",
		CodeRuleR2:  "Rule R2 violated: item '{{.ItemName}}' location does not match its owner's location",
		CodeRuleR3:  "Rule R3 violated: '{{.CharacterName}}' is dead and cannot act or be revived without a REVIVAL event",
		CodeRuleR4:  "Rule R4 violated: change to '{{.Field}}' on '{{.EntityName}}' requires a matching event type",
		CodeRuleR5:  "Rule R5 violated: '{{.CharacterName}}' changed location without a corresponding TRAVEL event",
		CodeRuleR6:  "Rule R6 violated: '{{.CharacterName}}' is placed in two locations at the same time order",
		CodeRuleR7:  "Rule R7 violated: time order moved backwards from {{.PreviousOrder}} to {{.NewOrder}}",
		CodeRuleR8:  "Rule R8 violated: immutable constraint on '{{.EntityName}}' would be broken by this turn. Which is canonical?",
		CodeRuleR9:  "Rule R9 violated: faction or relationship change for '{{.EntityName}}' is not traceable to an event",
		CodeRuleR10: "Rule R10 violated: the draft contradicts canonical fact about '{{.EntityName}}'",
	},
}
