// Package extractor converts a free-form narrative draft into structured
// candidate events and a state patch, via an external text model.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	apperrors "github.com/louisbranch/narrative-engine/internal/platform/errors"
	"github.com/louisbranch/narrative-engine/internal/platform/id"
)

// ErrExtractionTimeout indicates the model did not respond within the
// configured budget.
var ErrExtractionTimeout = apperrors.New(apperrors.CodeExtractionTimeout, "model did not respond in time")

// ErrExtractionParseError indicates the final attempt's response was
// unparseable.
var ErrExtractionParseError = apperrors.New(apperrors.CodeExtractionParseError, "could not parse model response")

// Mode selects how the model is asked to produce structured output, in
// the preference order step 2 of the extraction algorithm requires.
type Mode int

const (
	// ModeFunctionCall requests output via a forced tool/function call.
	ModeFunctionCall Mode = iota
	// ModeJSONObject requests plain JSON-object response formatting.
	ModeJSONObject
	// ModePlainText expects a fenced ```json code block inside free text.
	ModePlainText
)

// Request is one structured-output request to the text model.
type Request struct {
	Model        string
	SystemPrompt string
	UserMessage  string
	Mode         Mode
	// SchemaJSON is the JSON schema describing the structured output
	// contract, used for forced function-calling and as a prompt hint
	// in the fallback modes.
	SchemaJSON string
}

// Response is the raw model reply before parsing.
type Response struct {
	// ToolCallJSON is populated when the model honored forced
	// function-calling and returned arguments for the declared tool.
	ToolCallJSON string
	// Content is the assistant's plain-text reply, used in JSONObject
	// and PlainText modes.
	Content string
}

// Completer is the narrow seam between the extractor and any concrete
// chat-completion backend, following the teacher's habit of declaring
// small contracts next to their consumer rather than importing a
// provider SDK's types directly into domain logic.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ExtractRequest bundles the inputs to one extraction call.
type ExtractRequest struct {
	StoryID     string
	Turn        int
	UserMessage string
	Draft       string
	State       *domain.CanonicalState
}

// ExtractResult is the extractor's structured-output contract.
type ExtractResult struct {
	Events            []domain.Event
	OpenQuestions     []string
	RequiresUserInput bool
}

// Extractor turns drafts into candidate events by calling a Completer
// and validating its structured output.
type Extractor struct {
	completer  Completer
	model      string
	retryCount int
	logger     *slog.Logger
}

// New builds an Extractor. retryCount is the number of additional whole-
// call attempts on total parse failure (§4.2 step 3 specifies one retry
// by default, configured via Config.ExtractorRetryCount).
func New(completer Completer, model string, retryCount int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if retryCount < 0 {
		retryCount = 0
	}
	return &Extractor{completer: completer, model: model, retryCount: retryCount, logger: logger}
}

// Extract implements the §4.2 algorithm: build the prompt, call the
// model preferring forced function-calling then JSON-object mode then
// fenced-code-block parsing, validate and retry once on total failure,
// and synthesize a single OTHER event if nothing survives.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return ExtractResult{}, err
	}

	systemPrompt := buildSystemPrompt(req.State)

	var (
		parsed  extractionResponse
		lastErr error
		ok      bool
	)

	attempts := e.retryCount + 1
	for attempt := 0; attempt < attempts && !ok; attempt++ {
		parsed, lastErr = e.callWithFallback(ctx, systemPrompt, req.UserMessage)
		ok = lastErr == nil
		if !ok {
			e.logger.WarnContext(ctx, "extractor call failed across all modes", "story_id", req.StoryID, "turn", req.Turn, "attempt", attempt, "error", lastErr)
		}
	}
	if !ok {
		if apperrors.IsCode(lastErr, apperrors.CodeExtractionTimeout) {
			return ExtractResult{}, lastErr
		}
		return ExtractResult{}, apperrors.Wrap(apperrors.CodeExtractionParseError, "extraction failed after retries", lastErr)
	}

	if len(parsed.OpenQuestions) > 0 && len(parsed.Events) == 0 {
		return ExtractResult{OpenQuestions: parsed.OpenQuestions, RequiresUserInput: true}, nil
	}

	events := e.validateAndFinalize(ctx, req, parsed.Events)
	if len(events) == 0 && len(parsed.OpenQuestions) == 0 {
		fallback, err := synthesizeOtherEvent(req)
		if err != nil {
			return ExtractResult{}, apperrors.Wrap(apperrors.CodeExtractionParseError, "synthesizing fallback event", err)
		}
		events = []domain.Event{fallback}
	}

	return ExtractResult{Events: events, OpenQuestions: parsed.OpenQuestions}, nil
}

// callWithFallback tries ModeFunctionCall, then ModeJSONObject, then
// ModePlainText, parsing each response in turn and returning the first
// one that decodes as valid structured output (§4.2 step 2's preference
// order). A mode whose transport call errors, or whose content doesn't
// parse, falls through to the next mode; only exhausting all three
// counts as this call's failure.
func (e *Extractor) callWithFallback(ctx context.Context, systemPrompt, userMessage string) (extractionResponse, error) {
	modes := []Mode{ModeFunctionCall, ModeJSONObject, ModePlainText}

	var lastErr error
	for _, mode := range modes {
		resp, err := e.completer.Complete(ctx, Request{
			Model:        e.model,
			SystemPrompt: systemPrompt,
			UserMessage:  userMessage,
			Mode:         mode,
			SchemaJSON:   extractionSchemaJSON,
		})
		if err != nil {
			lastErr = err
			continue
		}

		raw := resp.Content
		if mode == ModeFunctionCall && strings.TrimSpace(resp.ToolCallJSON) != "" {
			raw = resp.ToolCallJSON
		}
		if strings.TrimSpace(raw) == "" {
			lastErr = fmt.Errorf("mode %d returned no content", mode)
			continue
		}

		decoded, parseErr := decodeExtractionResponse(raw)
		if parseErr != nil {
			lastErr = parseErr
			continue
		}
		return decoded, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("model returned no content in any mode")
	}
	code := apperrors.CodeExtractionParseError
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = apperrors.CodeExtractionTimeout
	}
	return extractionResponse{}, apperrors.Wrap(code, "model did not return usable output in any mode", lastErr)
}

// validateAndFinalize drops per-candidate validation failures (skip-
// with-log, step 3), including a candidate whose state_patch is empty
// (§3's traceability requirement -- only the synthesized OTHER fallback
// is exempt), and assigns ids/evidence to survivors (step 5).
func (e *Extractor) validateAndFinalize(ctx context.Context, req ExtractRequest, candidates []domain.Event) []domain.Event {
	out := make([]domain.Event, 0, len(candidates))
	for i, evt := range candidates {
		if !evt.Type.IsValid() {
			e.logger.WarnContext(ctx, "dropping candidate: unrecognized type", "story_id", req.StoryID, "turn", req.Turn, "index", i, "type", evt.Type)
			continue
		}
		if err := domain.ValidatePayload(evt.Type, evt.Payload); err != nil {
			e.logger.WarnContext(ctx, "dropping candidate: invalid payload", "story_id", req.StoryID, "turn", req.Turn, "index", i, "error", err)
			continue
		}
		if evt.StatePatch.IsEmpty() {
			e.logger.WarnContext(ctx, "dropping candidate: empty state_patch", "story_id", req.StoryID, "turn", req.Turn, "index", i)
			continue
		}

		evt.StoryID = req.StoryID
		evt.Turn = req.Turn
		if evt.Time.Label == "" {
			evt.Time.Label = req.State.Time.Anchor.Label
		}
		if evt.Time.Order == 0 {
			evt.Time.Order = req.State.Time.Anchor.Order
		}
		eventID, err := id.EventID(req.Turn, req.State.Meta.UpdatedAt.Unix())
		if err != nil {
			e.logger.WarnContext(ctx, "dropping candidate: event id generation failed", "story_id", req.StoryID, "turn", req.Turn, "index", i, "error", err)
			continue
		}
		evt.EventID = eventID
		evt.Evidence.Source = fmt.Sprintf("draft_turn_%d", req.Turn)
		if evt.Evidence.TextSpan == "" {
			evt.Evidence.TextSpan = matchingSentence(req.Draft, evt.Summary)
		}

		out = append(out, evt)
	}
	return out
}

// synthesizeOtherEvent builds the fallback OTHER event for step 4: no
// valid candidates and no open questions survived.
func synthesizeOtherEvent(req ExtractRequest) (domain.Event, error) {
	summary := firstLine(req.Draft)
	eventID, err := id.EventID(req.Turn, req.State.Meta.UpdatedAt.Unix())
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		EventID:  eventID,
		StoryID:  req.StoryID,
		Turn:     req.Turn,
		Time:     req.State.Time.Anchor,
		Type:     domain.TypeOther,
		Summary:  summary,
		Payload:  domain.Payload{Other: map[string]any{"note": summary}},
		Evidence: domain.Evidence{Source: fmt.Sprintf("draft_turn_%d", req.Turn)},
	}, nil
}

func firstLine(draft string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(draft), "\n")
	return line
}

// matchingSentence returns the first sentence in draft containing any
// word of summary, or "" if none match closely enough to be useful.
func matchingSentence(draft, summary string) string {
	if summary == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(summary))
	if len(words) == 0 {
		return ""
	}
	for _, sentence := range splitSentences(draft) {
		lower := strings.ToLower(sentence)
		for _, w := range words {
			if len(w) > 3 && strings.Contains(lower, w) {
				return strings.TrimSpace(sentence)
			}
		}
	}
	return ""
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
}

type extractionResponse struct {
	Events        []domain.Event `json:"events"`
	OpenQuestions []string       `json:"open_questions"`
}

func decodeExtractionResponse(raw string) (extractionResponse, error) {
	jsonText, err := extractJSON(raw)
	if err != nil {
		return extractionResponse{}, err
	}
	var resp extractionResponse
	if err := json.Unmarshal([]byte(jsonText), &resp); err != nil {
		return extractionResponse{}, fmt.Errorf("unmarshal extraction response: %w", err)
	}
	return resp, nil
}
