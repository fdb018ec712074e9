package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pewpi-infinity/spark/internal/analytics"
	"github.com/pewpi-infinity/spark/internal/generator"
	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/records"
)

// ErrNoStructure is returned when a promotion is finalized before a
// structure was selected.
var ErrNoStructure = errors.New("no structure selected")

// Promotion is an in-progress conversion of a token into a page. Nothing is
// written until FinalizePage.
type Promotion struct {
	token     model.Token
	result    model.SearchResult
	structure model.Structure
	title     string
	features  model.Features
	selected  bool
}

// Promote begins structure selection for tokenID. The SearchResult from the
// search that minted the token is reused when still held; otherwise the
// token's own query and content stand in with no tags.
func (w *Workflow) Promote(ctx context.Context, tokenID string) (*Promotion, error) {
	tok, err := w.store.Tokens.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	sr, ok := w.held(tok.ID)
	if !ok {
		sr = model.SearchResult{Query: tok.Query, Content: tok.Content, Tags: []string{}}
	}
	return &Promotion{token: tok, result: sr}, nil
}

// Expand generates fresh content for query and starts a promotion of it
// owned by the existing token tokenID. Finalizing adds a further page to
// that token; the token's own query and content are untouched.
func (w *Workflow) Expand(ctx context.Context, tokenID, query string) (*Promotion, error) {
	return w.ExpandWith(ctx, tokenID, generator.Request{Query: query})
}

// ExpandWith is Expand with a generator context and mode. It shares the
// in-flight guard with SearchWith.
func (w *Workflow) ExpandWith(ctx context.Context, tokenID string, req generator.Request) (*Promotion, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	tok, err := w.store.Tokens.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !w.begin() {
		return nil, ErrSearchInFlight
	}
	defer w.end()

	sr, err := w.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	w.metrics.ObserveSearch("ok")
	w.logger.Info("token expanded", "id", tok.ID, "query", req.Query, "tags", len(sr.Tags))
	return &Promotion{token: tok, result: sr}, nil
}

// SelectStructure picks the layout and resets features to its preset. An
// empty title falls back to the query the content was generated for.
func (p *Promotion) SelectStructure(s model.Structure, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = p.result.Query
	}
	if title == "" {
		title = p.token.Query
	}
	p.structure = s
	p.title = title
	p.features = s.Preset()
	p.selected = true
}

// Toggle flips one feature by name.
func (p *Promotion) Toggle(feature string) error {
	return p.features.Toggle(feature)
}

// SetFeatures replaces the whole feature mask.
func (p *Promotion) SetFeatures(f model.Features) { p.features = f }

func (p *Promotion) Token() model.Token         { return p.token }
func (p *Promotion) Result() model.SearchResult { return p.result }
func (p *Promotion) Structure() model.Structure { return p.structure }
func (p *Promotion) Title() string              { return p.title }
func (p *Promotion) Features() model.Features   { return p.features }

// FinalizePage writes a draft page for the promotion and links it to its
// token. Page and token land in one batch.
func (w *Workflow) FinalizePage(ctx context.Context, p *Promotion) (model.BuildPage, error) {
	if !p.selected {
		return model.BuildPage{}, ErrNoStructure
	}
	page := model.NewPage(p.token, p.result, p.title, p.structure, p.features, w.now())

	err := w.store.Update(ctx, func(ctx context.Context) ([]records.Change, error) {
		tok, err := w.store.Tokens.Get(ctx, p.token.ID)
		if err != nil {
			return nil, err
		}
		tok = analytics.TrackTokenPromotion(tok.WithPage(page.ID))

		pc, err := w.store.Pages.Stage(ctx, page)
		if err != nil {
			return nil, err
		}
		tc, err := w.store.Tokens.Stage(ctx, tok)
		if err != nil {
			return nil, err
		}
		return []records.Change{pc, tc}, nil
	})
	if err != nil {
		return model.BuildPage{}, fmt.Errorf("finalizing page for %s: %w", p.token.ID, err)
	}

	w.metrics.ObservePromotion()
	w.logger.Info("page created", "id", page.ID, "token", p.token.ID, "structure", page.Structure)
	return page, nil
}
