// Package publish renders pages to static HTML, delivers them through a
// configured strategy and tracks the resulting publish state.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pewpi-infinity/spark/internal/metrics"
	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/records"
	"github.com/pewpi-infinity/spark/internal/site"
	"github.com/pewpi-infinity/spark/internal/storage"
)

const (
	DefaultRecheckDelay = 2 * time.Minute
	recheckTimeout      = 30 * time.Second
	verifyConcurrency   = 4
)

// ErrNotPublished is returned by Verify for a page that was never delivered.
var ErrNotPublished = errors.New("page has not been published")

// Options configures a Publisher.
type Options struct {
	Store        *records.Store
	Site         *site.Store
	Strategy     Strategy
	Prober       Prober
	RecheckDelay time.Duration
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Now          func() time.Time
}

// Publisher owns the page lifecycle after promotion: Draft, AwaitingBuild
// and Published. It also owns the one-shot re-check timers it schedules.
type Publisher struct {
	store    *records.Store
	registry *Registry
	site     *site.Store
	strategy Strategy
	prober   Prober
	delay    time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func New(opts Options) *Publisher {
	p := &Publisher{
		store:    opts.Store,
		site:     opts.Site,
		strategy: opts.Strategy,
		prober:   opts.Prober,
		delay:    opts.RecheckDelay,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
		timers:   make(map[string]*time.Timer),
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.delay <= 0 {
		p.delay = DefaultRecheckDelay
	}
	if p.prober == nil {
		p.prober = NewHTTPProber(10 * time.Second)
	}
	p.registry = NewRegistry(opts.Store.KV(), p.logger)
	return p
}

// Strategy is the configured delivery strategy.
func (p *Publisher) Strategy() Strategy { return p.strategy }

// Active is the strategy the next publish would use.
func (p *Publisher) Active(ctx context.Context) Strategy { return Resolve(ctx, p.strategy) }

// Registry lists published pages, newest first.
func (p *Publisher) Registry(ctx context.Context) []RegistryEntry {
	return p.registry.List(ctx)
}

// Result is the outcome of a successful publish.
type Result struct {
	Page      model.BuildPage `json:"page"`
	URL       string          `json:"url"`
	Status    string          `json:"status"`
	CommitRef string          `json:"commitRef"`
	Strategy  string          `json:"strategy"`
}

// Publish renders and delivers the page, probes its URL and records the new
// state. If any step before the final write fails the stored page is left
// untouched. An unverified delivery schedules one re-check.
func (p *Publisher) Publish(ctx context.Context, pageID string) (Result, error) {
	page, err := p.store.Pages.Get(ctx, pageID)
	if err != nil {
		return Result{}, err
	}

	strategy := p.Active(ctx)
	if err := strategy.Ready(ctx); err != nil {
		p.metrics.ObservePublish(strategy.Name(), "not-ready")
		return Result{}, fmt.Errorf("%s publishing unavailable: %w", strategy.Name(), err)
	}

	cfg := p.site.Get(ctx)
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	at := p.now().UnixMilli()
	art, err := Render(page, cfg, at)
	if err != nil {
		return Result{}, err
	}
	if err := CheckDocument(art.HTML, page, cfg.SiteName); err != nil {
		return Result{}, err
	}

	d, err := strategy.Deliver(ctx, cfg, art)
	if err != nil {
		p.metrics.ObservePublish(strategy.Name(), "failed")
		p.logger.Warn("page delivery failed", "page", pageID, "strategy", strategy.Name(), "error", err)
		return Result{}, fmt.Errorf("delivering page %s: %w", pageID, err)
	}
	art.CommitRef = d.CommitRef

	live := p.prober.Probe(ctx, art.URL)

	var published model.BuildPage
	err = p.store.Update(ctx, func(ctx context.Context) ([]records.Change, error) {
		cur, err := p.store.Pages.Get(ctx, pageID)
		if err != nil {
			return nil, err
		}
		// Published is terminal: a republish refreshes publishedAt only.
		if live || cur.State.IsPublished() {
			cur.State = model.Published(art.URL, at)
		} else {
			cur.State = model.AwaitingBuild(art.URL, at)
		}
		cur.Slug = art.Slug
		published = cur

		pc, err := p.store.Pages.Stage(ctx, cur)
		if err != nil {
			return nil, err
		}
		rc, err := p.registry.Stage(ctx, registryEntry(cur, art))
		if err != nil {
			return nil, err
		}
		ac, err := records.Value(storage.ArtifactKey(pageID), art)
		if err != nil {
			return nil, err
		}
		return []records.Change{pc, rc, ac}, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("recording publish of %s: %w", pageID, err)
	}

	status := published.State.Status()
	p.metrics.ObservePublish(strategy.Name(), string(status))
	if status == model.StatusAwaitingBuild {
		p.schedule(pageID)
	} else {
		p.cancel(pageID)
	}

	p.logger.Info("page published", "page", pageID, "url", art.URL, "status", status, "strategy", strategy.Name())
	return Result{
		Page:      published,
		URL:       art.URL,
		Status:    string(status),
		CommitRef: art.CommitRef,
		Strategy:  strategy.Name(),
	}, nil
}

func registryEntry(page model.BuildPage, art Artifact) RegistryEntry {
	features := page.Features.Enabled()
	if features == nil {
		features = []string{}
	}
	return RegistryEntry{
		ID:          page.ID,
		TokenID:     page.TokenID,
		Title:       page.Title,
		Slug:        art.Slug,
		URL:         art.URL,
		Features:    features,
		CreatedAt:   page.Timestamp,
		CommitRef:   art.CommitRef,
		PublishedAt: page.State.PublishedAt(),
		Status:      string(page.State.Status()),
	}
}

// Verify re-probes an awaiting-build page and promotes it to Published when
// its URL answers. A failed probe changes nothing. Published pages are
// returned as they are.
func (p *Publisher) Verify(ctx context.Context, pageID string) (model.BuildPage, error) {
	page, err := p.store.Pages.Get(ctx, pageID)
	if err != nil {
		return model.BuildPage{}, err
	}

	switch page.State.Status() {
	case model.StatusDraft:
		return page, fmt.Errorf("verifying %s: %w", pageID, ErrNotPublished)
	case model.StatusPublished:
		return page, nil
	}

	url := page.State.URL()
	if !p.prober.Probe(ctx, url) {
		p.metrics.ObserveVerification("pending")
		return page, nil
	}

	var verified model.BuildPage
	err = p.store.Update(ctx, func(ctx context.Context) ([]records.Change, error) {
		cur, err := p.store.Pages.Get(ctx, pageID)
		if err != nil {
			return nil, err
		}
		if cur.State.Status() != model.StatusAwaitingBuild || cur.State.URL() != url {
			verified = cur
			return nil, nil
		}
		cur.State = cur.State.Verified()
		verified = cur

		pc, err := p.store.Pages.Stage(ctx, cur)
		if err != nil {
			return nil, err
		}
		changes := []records.Change{pc}
		if entry, err := p.registry.Get(ctx, pageID); err == nil {
			entry.Status = string(cur.State.Status())
			rc, err := p.registry.Stage(ctx, entry)
			if err != nil {
				return nil, err
			}
			changes = append(changes, rc)
		}
		return changes, nil
	})
	if err != nil {
		return page, fmt.Errorf("recording verification of %s: %w", pageID, err)
	}

	p.cancel(pageID)
	p.metrics.ObserveVerification("verified")
	p.logger.Info("page verified", "page", pageID, "url", url)
	return verified, nil
}

// VerifyPending re-probes every awaiting-build page concurrently and returns
// the pages that became Published.
func (p *Publisher) VerifyPending(ctx context.Context) ([]model.BuildPage, error) {
	var pending []string
	for _, page := range p.store.Pages.List(ctx) {
		if page.State.Status() == model.StatusAwaitingBuild {
			pending = append(pending, page.ID)
		}
	}

	results := make([]model.BuildPage, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, id := range pending {
		g.Go(func() error {
			page, err := p.Verify(gctx, id)
			if err != nil {
				return err
			}
			results[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	verified := []model.BuildPage{}
	for _, page := range results {
		if page.State.IsPublished() {
			verified = append(verified, page)
		}
	}
	return verified, nil
}

// Files returns the downloadable files of the page's last rendering.
func (p *Publisher) Files(ctx context.Context, pageID string) ([]File, error) {
	art, err := p.artifact(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return art.Files(), nil
}

func (p *Publisher) artifact(ctx context.Context, pageID string) (Artifact, error) {
	var art Artifact
	if err := storage.GetJSON(ctx, p.store.KV(), storage.ArtifactKey(pageID), &art); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Artifact{}, fmt.Errorf("no rendered files for page %s: %w", pageID, err)
		}
		return Artifact{}, err
	}
	return art, nil
}

// ExportAll returns the files of every registered page in registry order.
// Pages whose files cannot be read are logged and skipped.
func (p *Publisher) ExportAll(ctx context.Context) ([]File, error) {
	entries := p.registry.List(ctx)
	perPage := make([][]File, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, e := range entries {
		g.Go(func() error {
			files, err := p.Files(gctx, e.ID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger.Warn("skipping page in export", "page", e.ID, "error", err)
				return nil
			}
			perPage[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := []File{}
	for _, files := range perPage {
		all = append(all, files...)
	}
	return all, nil
}

// Close stops all pending re-checks. Publisher must not be used afterwards.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.metrics.SetRechecks(0)
}
