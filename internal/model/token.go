// Package model holds the records spark persists: tokens minted from queries,
// the pages promoted from them, and their publish state.
package model

import (
	"slices"
	"time"
)

// Token is one minted unit of knowledge from a query. Query and Content are
// written once at creation; only Promoted, PageIDs and Analytics change later.
type Token struct {
	ID        string          `json:"id"`
	Query     string          `json:"query"`
	Content   string          `json:"content"`
	Timestamp int64           `json:"timestamp"`
	Promoted  bool            `json:"promoted"`
	PageID    string          `json:"pageId,omitempty"`
	PageIDs   []string        `json:"pageIds,omitempty"`
	Analytics *TokenAnalytics `json:"analytics,omitempty"`
}

// TokenAnalytics counts interactions with a token.
type TokenAnalytics struct {
	Views      int   `json:"views"`
	Searches   int   `json:"searches"`
	Promotions int   `json:"promotions"`
	Shares     int   `json:"shares"`
	LastViewed int64 `json:"lastViewed,omitempty"`
}

// SearchResult is the transient output of one generator call. It is never
// persisted; it seeds a Token and, on promotion, a BuildPage.
type SearchResult struct {
	Query    string   `json:"query"`
	Content  string   `json:"content"`
	Analysis string   `json:"analysis"`
	Tags     []string `json:"tags"`
}

// NewToken mints a token for a generated result with zeroed analytics.
func NewToken(query, content string, now time.Time) Token {
	return Token{
		ID:        NewTokenID(now),
		Query:     query,
		Content:   content,
		Timestamp: now.UnixMilli(),
		Analytics: &TokenAnalytics{},
	}
}

// WithPage returns a copy of t linked to pageID. The id is appended to PageIDs
// only if absent, so repeating the call is a no-op on the link set.
func (t Token) WithPage(pageID string) Token {
	out := t.Normalize()
	if !slices.Contains(out.PageIDs, pageID) {
		out.PageIDs = append(slices.Clone(out.PageIDs), pageID)
	}
	out.Promoted = true
	out.PageID = out.PageIDs[0]
	return out
}

// Normalize reconciles the legacy single-page link with PageIDs. PageIDs is
// authoritative; PageID is always its first element. A token is promoted
// exactly when it owns a page.
func (t Token) Normalize() Token {
	if len(t.PageIDs) == 0 && t.PageID != "" {
		t.PageIDs = []string{t.PageID}
	}
	t.Promoted = len(t.PageIDs) > 0
	if t.Promoted {
		t.PageID = t.PageIDs[0]
	}
	return t
}

// OwnsPage reports whether pageID is linked to t.
func (t Token) OwnsPage(pageID string) bool {
	return slices.Contains(t.Normalize().PageIDs, pageID)
}
