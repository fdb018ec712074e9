// Package analytics holds the interaction counters of tokens and pages. Every
// Track function returns an updated copy and leaves its argument untouched.
package analytics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pewpi-infinity/spark/internal/model"
)

func tokenStats(t model.Token) model.TokenAnalytics {
	if t.Analytics == nil {
		return model.TokenAnalytics{}
	}
	return *t.Analytics
}

func pageStats(p model.BuildPage) model.PageAnalytics {
	if p.Analytics == nil {
		return model.PageAnalytics{}
	}
	return *p.Analytics
}

func withTokenStats(t model.Token, a model.TokenAnalytics) model.Token {
	t.Analytics = &a
	return t
}

func withPageStats(p model.BuildPage, a model.PageAnalytics) model.BuildPage {
	p.Analytics = &a
	return p
}

func TrackTokenView(t model.Token, now time.Time) model.Token {
	a := tokenStats(t)
	a.Views++
	a.LastViewed = now.UnixMilli()
	return withTokenStats(t, a)
}

func TrackTokenSearch(t model.Token) model.Token {
	a := tokenStats(t)
	a.Searches++
	return withTokenStats(t, a)
}

func TrackTokenShare(t model.Token) model.Token {
	a := tokenStats(t)
	a.Shares++
	return withTokenStats(t, a)
}

func TrackTokenPromotion(t model.Token) model.Token {
	a := tokenStats(t)
	a.Promotions++
	return withTokenStats(t, a)
}

func TrackPageView(p model.BuildPage, now time.Time) model.BuildPage {
	a := pageStats(p)
	a.Views++
	a.LastViewed = now.UnixMilli()
	return withPageStats(p, a)
}

func TrackPageShare(p model.BuildPage) model.BuildPage {
	a := pageStats(p)
	a.Shares++
	return withPageStats(p, a)
}

func TrackPageEdit(p model.BuildPage) model.BuildPage {
	a := pageStats(p)
	a.Edits++
	return withPageStats(p, a)
}

// EngagementScore weighs shares five times and the entity-specific counter
// (promotions for tokens, edits for pages) twice as much as views.
func EngagementScore(views, shares, other int) int {
	return views + 5*shares + 2*other
}

// TokenEngagement is EngagementScore over a token's counters.
func TokenEngagement(t model.Token) int {
	a := tokenStats(t)
	return EngagementScore(a.Views, a.Shares, a.Promotions)
}

// PageEngagement is EngagementScore over a page's counters.
func PageEngagement(p model.BuildPage) int {
	a := pageStats(p)
	return EngagementScore(a.Views, a.Shares, a.Edits)
}

// FormatNumber renders n as "1.2M", "3.4K" or the plain integer.
func FormatNumber(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return strconv.Itoa(n)
}
