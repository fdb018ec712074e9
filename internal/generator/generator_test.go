package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pewpi-infinity/spark/internal/ollama"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
	delay    time.Duration
	schema   *ollama.Schema
	messages []ollama.Message
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error) {
	m.schema = jsonSchema
	m.messages = messages
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Result
		wantErr bool
	}{
		{
			name: "valid",
			raw:  `{"content":"jazz began in New Orleans","analysis":"roots","tags":["jazz","history"]}`,
			want: Result{Content: "jazz began in New Orleans", Analysis: "roots", Tags: []string{"jazz", "history"}},
		},
		{
			name: "fenced",
			raw:  "```json\n{\"content\":\"c\",\"analysis\":\"a\",\"tags\":[]}\n```",
			want: Result{Content: "c", Analysis: "a", Tags: []string{}},
		},
		{
			name: "blank tags dropped",
			raw:  `{"content":"c","analysis":"a","tags":[" x ",""]}`,
			want: Result{Content: "c", Analysis: "a", Tags: []string{"x"}},
		},
		{name: "missing content", raw: `{"analysis":"a","tags":[]}`, wantErr: true},
		{name: "empty content", raw: `{"content":"  ","analysis":"a","tags":[]}`, wantErr: true},
		{name: "missing analysis", raw: `{"content":"c","tags":[]}`, wantErr: true},
		{name: "missing tags", raw: `{"content":"c","analysis":"a"}`, wantErr: true},
		{name: "null tags", raw: `{"content":"c","analysis":"a","tags":null}`, wantErr: true},
		{name: "string tags", raw: `{"content":"c","analysis":"a","tags":"jazz"}`, wantErr: true},
		{name: "not json", raw: `not valid json {{{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("test", tt.raw)
			if tt.wantErr {
				var ge *Error
				if !errors.As(err, &ge) {
					t.Fatalf("err = %v, want *Error", err)
				}
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("err = %v, want ErrMalformed", err)
				}
				if !reflect.DeepEqual(got, Result{}) {
					t.Errorf("partial result returned: %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOllamaGenerate(t *testing.T) {
	mock := &mockChatter{response: `{"content":"c","analysis":"a","tags":["jazz"]}`}
	g := NewOllama(mock, "llama3.2")

	got, err := g.Generate(context.Background(), Request{Query: "history of jazz"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Content != "c" || len(got.Tags) != 1 {
		t.Errorf("Generate = %+v", got)
	}
	if mock.schema == nil || mock.schema.Properties["tags"].Items == nil {
		t.Error("structured schema with string tags not sent")
	}
	last := mock.messages[len(mock.messages)-1]
	if !strings.Contains(last.Content, "history of jazz") {
		t.Errorf("user message = %q, want it to contain the query", last.Content)
	}
}

func TestOllamaGenerate_ChatError(t *testing.T) {
	g := NewOllama(&mockChatter{err: fmt.Errorf("connection refused")}, "llama3.2")
	_, err := g.Generate(context.Background(), Request{Query: "q"})
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ge.Backend != "ollama" {
		t.Errorf("Backend = %q", ge.Backend)
	}
}

func TestOllamaGenerate_Timeout(t *testing.T) {
	g := NewOllama(&mockChatter{response: `{}`, delay: time.Second}, "llama3.2")
	g.timeout = 50 * time.Millisecond

	_, err := g.Generate(context.Background(), Request{Query: "q"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"content\":\"c\",\"analysis\":\"a\",\"tags\":[\"t\"]}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	g := NewOpenAI("sk-test", srv.URL+"/v1", "gpt-4o")
	got, err := g.Generate(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reflect.DeepEqual(got, Result{Content: "c", Analysis: "a", Tags: []string{"t"}}) {
		t.Errorf("Generate = %+v", got)
	}
	rf, _ := gotBody["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", gotBody["response_format"])
	}
}

func TestOpenAIGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	g := NewOpenAI("sk-test", srv.URL+"/v1", "gpt-4o")
	_, err := g.Generate(context.Background(), Request{Query: "q"})
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("err = %v, want *Error", err)
	}
}

func TestStubDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := Stub{}.Generate(ctx, Request{Query: "History of Jazz music"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, _ := Stub{}.Generate(ctx, Request{Query: "History of Jazz music"})
	if !reflect.DeepEqual(a, b) {
		t.Error("stub output not deterministic")
	}
	if want := []string{"history", "jazz", "music"}; !reflect.DeepEqual(a.Tags, want) {
		t.Errorf("Tags = %v, want %v", a.Tags, want)
	}
	if a.Content == "" || a.Analysis == "" {
		t.Error("stub left content or analysis empty")
	}
}

func TestStubFallbackTag(t *testing.T) {
	got, _ := Stub{}.Generate(context.Background(), Request{Query: "a b"})
	if !reflect.DeepEqual(got.Tags, []string{"research"}) {
		t.Errorf("Tags = %v", got.Tags)
	}
}

func TestBuildPromptIncludesContextAndMode(t *testing.T) {
	msgs := BuildPrompt(Request{Query: "q", Context: "prior notes", Mode: "brief"})
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	sys := msgs[0].Content
	for _, want := range []string{"[Context]\nprior notes", "[Mode]\nbrief", `"tags"`} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if msgs[1].Role != "user" || msgs[1].Content != "Query: q" {
		t.Errorf("user message = %+v", msgs[1])
	}
}
