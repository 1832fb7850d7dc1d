package extractor

import (
	"context"
	"fmt"

	anyllm "github.com/mozilla-ai/any-llm-go"
)

// anyLLMCompleter adapts a Completer onto any-llm-go's provider-agnostic
// chat-completion client (§4.2's "LLM client" note): this is the first
// component in the codebase to import any-llm-go directly, generalizing
// what was an indirect-only dependency in the teacher (which talks to
// OpenAI over net/http instead). Forced function-calling and JSON-object
// mode are requested as chat-completion parameters; fenced-code-block
// parsing has no library support and lives entirely in parse.go.
type anyLLMCompleter struct {
	client *anyllm.Client
}

// NewAnyLLMCompleter builds a Completer backed by any-llm-go, configured
// against the given provider base URL and API key (Config.LLMBaseURL /
// Config.LLMAPIKey).
func NewAnyLLMCompleter(baseURL, apiKey string) (Completer, error) {
	client, err := anyllm.NewClient(anyllm.ClientConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("build any-llm-go client: %w", err)
	}
	return &anyLLMCompleter{client: client}, nil
}

// Complete implements Completer against any-llm-go's chat-completion call.
func (a *anyLLMCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	params := anyllm.ChatCompletionParams{
		Model: req.Model,
		Messages: []anyllm.Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserMessage},
		},
	}

	switch req.Mode {
	case ModeFunctionCall:
		params.Tools = []anyllm.Tool{{
			Type: "function",
			Function: anyllm.FunctionDefinition{
				Name:        "record_events",
				Description: "Record the structured events and open questions extracted from the draft.",
				Parameters:  []byte(req.SchemaJSON),
			},
		}}
		params.ToolChoice = "required"
	case ModeJSONObject:
		params.ResponseFormat = &anyllm.ResponseFormat{Type: "json_object"}
	case ModePlainText:
		// No response-format hint; parse.go's fenced-block fallback
		// handles whatever the model returns.
	}

	completion, err := a.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("any-llm-go chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("any-llm-go returned no choices")
	}

	choice := completion.Choices[0]
	resp := Response{Content: choice.Message.Content}
	if len(choice.Message.ToolCalls) > 0 {
		resp.ToolCallJSON = choice.Message.ToolCalls[0].Function.Arguments
	}
	return resp, nil
}
