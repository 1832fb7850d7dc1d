package extractor

import (
	"fmt"
	"strings"
)

// extractJSON normalizes a model response into a JSON document: a
// forced-function-call or JSON-object-mode reply is already JSON and
// passes through; a plain-text reply is searched for a fenced code
// block (```json ... ``` or ``` ... ```) per §4.2 step 2's final
// fallback.
func extractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty model response")
	}
	if strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}

	if block, ok := fencedCodeBlock(trimmed); ok {
		return block, nil
	}

	return "", fmt.Errorf("model response is neither a JSON object nor a fenced code block")
}

// fencedCodeBlock extracts the contents of the first ``` or ```json
// fenced block in text.
func fencedCodeBlock(text string) (string, bool) {
	const fence = "```"
	start := strings.Index(text, fence)
	if start == -1 {
		return "", false
	}
	rest := text[start+len(fence):]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "\n")

	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
