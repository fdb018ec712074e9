package generator

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Stub produces a deterministic research-style overview without calling any
// model. It is the offline backend.
type Stub struct{}

func (Stub) Name() string { return "stub" }

func (s Stub) Generate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &Error{Backend: s.Name(), Reason: "cancelled", Err: err}
	}
	q := strings.TrimSpace(req.Query)

	sections := []struct{ heading, body string }{
		{"Overview", fmt.Sprintf("This section introduces %s and establishes its role within the system.", q)},
		{"Technical Context", fmt.Sprintf("%s influences how components, data, and navigation are organized.", q)},
		{"Site Construction", "The information here is used to generate pages, widgets, and metadata."},
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s is a foundational concept used to define the structure, behavior, and intent of this site. "+
		"This page is generated as a research-first overview and serves as the base layer for content construction.", q)
	for _, sec := range sections {
		fmt.Fprintf(&sb, "\n\n%s\n%s", sec.heading, sec.body)
	}

	return Result{
		Content:  sb.String(),
		Analysis: fmt.Sprintf("Key areas for %s: overview, technical context and site construction.", q),
		Tags:     stubTags(q),
	}, nil
}

// stubTags picks up to five distinct words of four or more letters from the
// query, falling back to "research".
func stubTags(q string) []string {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var tags []string
	for _, w := range words {
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) == 5 {
			break
		}
	}
	if len(tags) == 0 {
		tags = []string{"research"}
	}
	return tags
}
