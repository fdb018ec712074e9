package generator

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI generates content through any OpenAI-compatible chat completions
// API (OpenAI, OpenRouter) in JSON mode.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a backend for the given API. An empty baseURL uses the
// library default.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	prompt := BuildPrompt(req)
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt))
	for _, m := range prompt {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, &Error{Backend: o.Name(), Reason: "completion failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return Result{}, &Error{Backend: o.Name(), Reason: "no choices in response", Err: ErrMalformed}
	}
	return Parse(o.Name(), resp.Choices[0].Message.Content)
}
