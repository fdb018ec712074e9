package generator

import (
	"fmt"
	"strings"

	"github.com/pewpi-infinity/spark/internal/ollama"
)

const systemPrompt = `You are analyzing a search query to generate meaningful content. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Generate a comprehensive response that includes:
1. Main content addressing the query (2-3 paragraphs)
2. Key insights or analysis
3. 3-5 relevant tags

Return the JSON in this exact format:
{
  "content": "detailed content here",
  "analysis": "key insights here",
  "tags": ["tag1", "tag2", "tag3"]
}`

// BuildPrompt constructs the chat messages for a generation request.
func BuildPrompt(req Request) []ollama.Message {
	var sb strings.Builder
	sb.WriteString(systemPrompt)

	if req.Mode != "" {
		fmt.Fprintf(&sb, "\n\n[Mode]\n%s", req.Mode)
	}
	if req.Context != "" {
		fmt.Fprintf(&sb, "\n\n[Context]\n%s", req.Context)
	}

	return []ollama.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: "Query: " + req.Query},
	}
}

// resultSchema is the JSON schema for structured output.
func resultSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"content":  {Type: "string", Description: "Main content addressing the query, 2-3 paragraphs"},
			"analysis": {Type: "string", Description: "Key insights or analysis"},
			"tags":     {Type: "array", Description: "3-5 relevant tags", Items: &ollama.SchemaProperty{Type: "string"}},
		},
		Required: []string{"content", "analysis", "tags"},
	}
}
