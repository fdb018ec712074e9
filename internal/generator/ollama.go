package generator

import (
	"context"
	"time"

	"github.com/pewpi-infinity/spark/internal/ollama"
)

const defaultTimeout = 60 * time.Second

// Chatter is the chat completion surface of the Ollama client.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Ollama generates content with a local Ollama model using schema-constrained
// output.
type Ollama struct {
	client  Chatter
	model   string
	timeout time.Duration
}

func NewOllama(client Chatter, model string) *Ollama {
	return &Ollama{client: client, model: model, timeout: defaultTimeout}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.client.Chat(ctx, o.model, BuildPrompt(req), resultSchema())
	if err != nil {
		return Result{}, &Error{Backend: o.Name(), Reason: "chat failed", Err: err}
	}
	return Parse(o.Name(), raw)
}
