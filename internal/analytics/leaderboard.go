package analytics

import (
	"slices"

	"github.com/pewpi-infinity/spark/internal/model"
)

// PointsPerPage is the leaderboard value of each page linked to a token.
const PointsPerPage = 100

// Entry is one leaderboard row.
type Entry struct {
	Rank       int         `json:"rank"`
	Token      model.Token `json:"token"`
	Value      int         `json:"value"`
	PageCount  int         `json:"pageCount"`
	TotalViews int         `json:"totalViews"`
}

// Leaderboard ranks tokens by linked pages, then by total views across the
// token and its pages, then by recency. A page belongs to a token when its
// tokenId matches or the token lists it.
func Leaderboard(tokens []model.Token, pages []model.BuildPage) []Entry {
	entries := make([]Entry, 0, len(tokens))
	for _, t := range tokens {
		e := Entry{Token: t, TotalViews: tokenStats(t).Views}
		for _, p := range pages {
			if p.TokenID == t.ID || t.OwnsPage(p.ID) {
				e.PageCount++
				e.TotalViews += pageStats(p).Views
			}
		}
		e.Value = e.PageCount * PointsPerPage
		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		if a.Value != b.Value {
			return b.Value - a.Value
		}
		if a.TotalViews != b.TotalViews {
			return b.TotalViews - a.TotalViews
		}
		switch {
		case a.Token.Timestamp > b.Token.Timestamp:
			return -1
		case a.Token.Timestamp < b.Token.Timestamp:
			return 1
		}
		return 0
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
