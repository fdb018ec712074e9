// Package search ranks tokens and pages against a free-text query. Search is
// pure: it never mutates its inputs and equal inputs give equal output.
package search

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pewpi-infinity/spark/internal/model"
)

// Type restricts which collections are searched.
type Type string

const (
	TypeAll    Type = "all"
	TypeTokens Type = "tokens"
	TypePages  Type = "pages"
)

// ParseType validates a type filter. Empty means TypeAll.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case "", TypeAll:
		return TypeAll, nil
	case TypeTokens, TypePages:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown search type %q", s)
}

// Match weights.
const (
	ScoreName    = 10
	ScoreID      = 5
	ScoreContent = 3
	ScoreTag     = 7
)

// Filters narrow the candidate set before matching. Promoted applies to
// tokens only. From and To are inclusive millisecond bounds; zero is open.
type Filters struct {
	Type     Type
	Promoted *bool
	From     int64
	To       int64
}

func (f Filters) inRange(ts int64) bool {
	if f.From != 0 && ts < f.From {
		return false
	}
	if f.To != 0 && ts > f.To {
		return false
	}
	return true
}

// Kind tells which record an Item wraps.
type Kind string

const (
	KindToken Kind = "token"
	KindPage  Kind = "page"
)

// Item is one ranked result.
type Item struct {
	Kind      Kind             `json:"type"`
	Score     int              `json:"score"`
	Timestamp int64            `json:"timestamp"`
	Token     *model.Token     `json:"token,omitempty"`
	Page      *model.BuildPage `json:"page,omitempty"`
}

// ID is the id of the wrapped record.
func (it Item) ID() string {
	if it.Token != nil {
		return it.Token.ID
	}
	return it.Page.ID
}

// Search matches query case-insensitively against tokens (query, content, id)
// and pages (title, content, id, tokenId, tags). With a non-blank query items
// are ordered by score then recency; a blank query returns every item that
// passes the filters, newest first.
func Search(tokens []model.Token, pages []model.BuildPage, query string, f Filters) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	items := []Item{}

	if f.Type != TypePages {
		for i := range tokens {
			t := tokens[i]
			if f.Promoted != nil && t.Promoted != *f.Promoted {
				continue
			}
			if !f.inRange(t.Timestamp) {
				continue
			}
			score, ok := scoreToken(t, q)
			if !ok {
				continue
			}
			t.PageIDs = slices.Clone(t.PageIDs)
			if t.Analytics != nil {
				a := *t.Analytics
				t.Analytics = &a
			}
			items = append(items, Item{Kind: KindToken, Score: score, Timestamp: t.Timestamp, Token: &t})
		}
	}

	if f.Type != TypeTokens {
		for i := range pages {
			p := pages[i]
			if !f.inRange(p.Timestamp) {
				continue
			}
			score, ok := scorePage(p, q)
			if !ok {
				continue
			}
			p.Tags = slices.Clone(p.Tags)
			if p.Analytics != nil {
				a := *p.Analytics
				p.Analytics = &a
			}
			items = append(items, Item{Kind: KindPage, Score: score, Timestamp: p.Timestamp, Page: &p})
		}
	}

	slices.SortStableFunc(items, func(a, b Item) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		return 0
	})
	return items
}

func contains(field, q string) bool {
	return strings.Contains(strings.ToLower(field), q)
}

func scoreToken(t model.Token, q string) (int, bool) {
	if q == "" {
		return 0, true
	}
	score := 0
	if contains(t.Query, q) {
		score += ScoreName
	}
	if contains(t.ID, q) {
		score += ScoreID
	}
	if contains(t.Content, q) {
		score += ScoreContent
	}
	return score, score > 0
}

// scorePage also accepts a tokenId match, which filters in without scoring.
func scorePage(p model.BuildPage, q string) (int, bool) {
	if q == "" {
		return 0, true
	}
	score := 0
	if contains(p.Title, q) {
		score += ScoreName
	}
	if contains(p.ID, q) {
		score += ScoreID
	}
	if contains(p.Content, q) {
		score += ScoreContent
	}
	if slices.ContainsFunc(p.Tags, func(tag string) bool { return contains(tag, q) }) {
		score += ScoreTag
	}
	return score, score > 0 || contains(p.TokenID, q)
}
