package workflow

import (
	"context"
	"strings"

	"github.com/pewpi-infinity/spark/internal/analytics"
	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/records"
)

func (w *Workflow) updateToken(ctx context.Context, id string, fn func(model.Token) model.Token) (model.Token, error) {
	var out model.Token
	err := w.store.Update(ctx, func(ctx context.Context) ([]records.Change, error) {
		tok, err := w.store.Tokens.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = fn(tok)
		ch, err := w.store.Tokens.Stage(ctx, out)
		if err != nil {
			return nil, err
		}
		return []records.Change{ch}, nil
	})
	return out, err
}

func (w *Workflow) updatePage(ctx context.Context, id string, fn func(model.BuildPage) model.BuildPage) (model.BuildPage, error) {
	var out model.BuildPage
	err := w.store.Update(ctx, func(ctx context.Context) ([]records.Change, error) {
		page, err := w.store.Pages.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = fn(page)
		ch, err := w.store.Pages.Stage(ctx, out)
		if err != nil {
			return nil, err
		}
		return []records.Change{ch}, nil
	})
	return out, err
}

// ViewToken records a view of a token.
func (w *Workflow) ViewToken(ctx context.Context, id string) (model.Token, error) {
	return w.updateToken(ctx, id, func(t model.Token) model.Token {
		return analytics.TrackTokenView(t, w.now())
	})
}

// ShareToken records a share of a token.
func (w *Workflow) ShareToken(ctx context.Context, id string) (model.Token, error) {
	return w.updateToken(ctx, id, analytics.TrackTokenShare)
}

// ViewPage records a view of a page.
func (w *Workflow) ViewPage(ctx context.Context, id string) (model.BuildPage, error) {
	return w.updatePage(ctx, id, func(p model.BuildPage) model.BuildPage {
		return analytics.TrackPageView(p, w.now())
	})
}

// SharePage records a share of a page.
func (w *Workflow) SharePage(ctx context.Context, id string) (model.BuildPage, error) {
	return w.updatePage(ctx, id, analytics.TrackPageShare)
}

// PageEdit changes the body of a page. Title is fixed after promotion since
// it determines the published path.
type PageEdit struct {
	Content *string  `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// EditPage applies e to a page and counts the edit. An empty edit still
// counts, matching an editor session that saved without changes.
func (w *Workflow) EditPage(ctx context.Context, id string, e PageEdit) (model.BuildPage, error) {
	return w.updatePage(ctx, id, func(p model.BuildPage) model.BuildPage {
		if e.Content != nil {
			p.Content = *e.Content
		}
		if e.Tags != nil {
			tags := make([]string, 0, len(e.Tags))
			for _, t := range e.Tags {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
			p.Tags = tags
		}
		return analytics.TrackPageEdit(p)
	})
}

// TrackSearchHits counts a local search hit on every listed token. Unknown
// ids are ignored.
func (w *Workflow) TrackSearchHits(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	hit := make(map[string]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		hit[id] = true
	}
	return w.store.Update(ctx, func(ctx context.Context) ([]records.Change, error) {
		var touched []model.Token
		for _, t := range w.store.Tokens.List(ctx) {
			if hit[t.ID] {
				touched = append(touched, analytics.TrackTokenSearch(t))
			}
		}
		if len(touched) == 0 {
			return nil, nil
		}
		ch, err := w.store.Tokens.Stage(ctx, touched...)
		if err != nil {
			return nil, err
		}
		return []records.Change{ch}, nil
	})
}
