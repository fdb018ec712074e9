// Package workflow drives a query through generation into a Token and, on
// promotion, into a draft BuildPage.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pewpi-infinity/spark/internal/generator"
	"github.com/pewpi-infinity/spark/internal/metrics"
	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/records"
)

// heldResults bounds the SearchResults kept for later promotion.
const heldResults = 64

var (
	ErrEmptyQuery     = errors.New("query is empty")
	ErrSearchInFlight = errors.New("a search is already running")
)

// Options configures a Workflow.
type Options struct {
	Store     *records.Store
	Generator generator.Generator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Workflow mints tokens from queries and promotes them to pages.
type Workflow struct {
	store   *records.Store
	gen     generator.Generator
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	busy atomic.Bool

	mu      sync.Mutex
	results map[string]model.SearchResult
	order   []string
}

func New(opts Options) *Workflow {
	w := &Workflow{
		store:   opts.Store,
		gen:     opts.Generator,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
		results: make(map[string]model.SearchResult),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Store is the token and page store the workflow writes to.
func (w *Workflow) Store() *records.Store { return w.store }

// Search generates content for query and mints a token for it.
func (w *Workflow) Search(ctx context.Context, query string) (model.Token, model.SearchResult, error) {
	return w.SearchWith(ctx, generator.Request{Query: query})
}

// SearchWith is Search with an optional context and mode passed to the
// generator. Only one search runs at a time; a concurrent call fails with
// ErrSearchInFlight without waiting.
func (w *Workflow) SearchWith(ctx context.Context, req generator.Request) (model.Token, model.SearchResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		w.metrics.ObserveSearch("empty")
		return model.Token{}, model.SearchResult{}, ErrEmptyQuery
	}
	if !w.begin() {
		return model.Token{}, model.SearchResult{}, ErrSearchInFlight
	}
	defer w.end()

	sr, err := w.generate(ctx, req)
	if err != nil {
		return model.Token{}, model.SearchResult{}, err
	}
	tok := model.NewToken(req.Query, sr.Content, w.now())

	err = w.store.Update(ctx, func(ctx context.Context) ([]records.Change, error) {
		ch, err := w.store.Tokens.Stage(ctx, tok)
		if err != nil {
			return nil, err
		}
		return []records.Change{ch}, nil
	})
	if err != nil {
		w.metrics.ObserveSearch("error")
		return model.Token{}, model.SearchResult{}, fmt.Errorf("saving token: %w", err)
	}

	w.hold(tok.ID, sr)
	w.metrics.ObserveSearch("ok")
	w.logger.Info("token minted", "id", tok.ID, "backend", w.gen.Name(), "tags", len(sr.Tags))
	return tok, sr, nil
}

// begin claims the single in-flight slot shared by searches and expansions.
// It never waits.
func (w *Workflow) begin() bool {
	if !w.busy.CompareAndSwap(false, true) {
		w.metrics.ObserveSearch("busy")
		return false
	}
	return true
}

func (w *Workflow) end() { w.busy.Store(false) }

func (w *Workflow) generate(ctx context.Context, req generator.Request) (model.SearchResult, error) {
	start := time.Now()
	res, err := w.gen.Generate(ctx, req)
	w.metrics.ObserveGenerator(w.gen.Name(), time.Since(start))
	if err != nil {
		w.metrics.ObserveSearch("error")
		return model.SearchResult{}, fmt.Errorf("generating content: %w", err)
	}
	return model.SearchResult{Query: req.Query, Content: res.Content, Analysis: res.Analysis, Tags: res.Tags}, nil
}

func (w *Workflow) hold(tokenID string, sr model.SearchResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.results[tokenID]; !ok {
		w.order = append(w.order, tokenID)
	}
	w.results[tokenID] = sr
	for len(w.order) > heldResults {
		delete(w.results, w.order[0])
		w.order = w.order[1:]
	}
}

func (w *Workflow) held(tokenID string) (model.SearchResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sr, ok := w.results[tokenID]
	return sr, ok
}

// Tokens lists tokens newest first.
func (w *Workflow) Tokens(ctx context.Context) []model.Token { return w.store.Tokens.List(ctx) }

// Pages lists pages newest first.
func (w *Workflow) Pages(ctx context.Context) []model.BuildPage { return w.store.Pages.List(ctx) }

// Token returns one token by id.
func (w *Workflow) Token(ctx context.Context, id string) (model.Token, error) {
	return w.store.Tokens.Get(ctx, id)
}

// Page returns one page by id.
func (w *Workflow) Page(ctx context.Context, id string) (model.BuildPage, error) {
	return w.store.Pages.Get(ctx, id)
}
