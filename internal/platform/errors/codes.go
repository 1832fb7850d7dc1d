// Package errors provides structured error handling with i18n support.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Store errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeDuplicateEventID Code = "DUPLICATE_EVENT_ID"
	CodeCorruption       Code = "CORRUPTION"

	// Extractor errors
	CodeExtractionTimeout    Code = "EXTRACTION_TIMEOUT"
	CodeExtractionParseError Code = "EXTRACTION_PARSE_ERROR"
	CodeValidationError      Code = "VALIDATION_ERROR"

	// Turn/invariant errors
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	CodeMalformedDraft     Code = "MALFORMED_DRAFT"

	// Consistency gate rule codes double as message-catalog keys so a
	// REWRITE or ASK_USER disposition can carry a templated, user-facing
	// explanation alongside its machine-readable rule id.
	CodeRuleR1  Code = "RULE_R1"
	CodeRuleR2  Code = "RULE_R2"
	CodeRuleR3  Code = "RULE_R3"
	CodeRuleR4  Code = "RULE_R4"
	CodeRuleR5  Code = "RULE_R5"
	CodeRuleR6  Code = "RULE_R6"
	CodeRuleR7  Code = "RULE_R7"
	CodeRuleR8  Code = "RULE_R8"
	CodeRuleR9  Code = "RULE_R9"
	CodeRuleR10 Code = "RULE_R10"
)
