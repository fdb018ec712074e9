// Package generator turns a query into generated content. Backends are an
// Ollama model, an OpenAI-compatible API, or a deterministic stub.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by Error when a backend answers with output that
// does not have the required shape.
var ErrMalformed = errors.New("malformed generator output")

// Request is one generation call.
type Request struct {
	Query   string
	Context string
	Mode    string
}

// Result is the validated output of a generation call.
type Result struct {
	Content  string   `json:"content"`
	Analysis string   `json:"analysis"`
	Tags     []string `json:"tags"`
}

// Generator produces content for a query. Implementations return either a
// fully populated Result or an *Error, never a partial Result.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (Result, error)
}

// Error is returned for both unreachable backends and malformed output.
type Error struct {
	Backend string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generator %s: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("generator %s: %s", e.Backend, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// rawResult mirrors the backend JSON before validation. Tags is kept raw so a
// non-array value is rejected instead of silently dropped.
type rawResult struct {
	Content  *string         `json:"content"`
	Analysis *string         `json:"analysis"`
	Tags     json.RawMessage `json:"tags"`
}

// Parse validates raw backend output. content and analysis must be non-empty
// strings and tags must be an array of strings.
func Parse(backend, raw string) (Result, error) {
	raw = stripFence(raw)

	var r rawResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Result{}, &Error{Backend: backend, Reason: "output is not a JSON object", Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	malformed := func(reason string) error {
		return &Error{Backend: backend, Reason: reason, Err: ErrMalformed}
	}
	if r.Content == nil || strings.TrimSpace(*r.Content) == "" {
		return Result{}, malformed("missing content")
	}
	if r.Analysis == nil || strings.TrimSpace(*r.Analysis) == "" {
		return Result{}, malformed("missing analysis")
	}
	if len(r.Tags) == 0 || string(r.Tags) == "null" {
		return Result{}, malformed("missing tags")
	}

	var tags []string
	if err := json.Unmarshal(r.Tags, &tags); err != nil {
		return Result{}, malformed("tags must be an array of strings")
	}

	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return Result{Content: *r.Content, Analysis: *r.Analysis, Tags: cleaned}, nil
}

// stripFence removes a surrounding ```json fence some models add despite
// being asked for bare JSON.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
