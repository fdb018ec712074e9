package publish

import (
	"context"
	"time"
)

// schedule arms a single re-check for pageID, replacing any earlier one.
// The re-check runs once; a failure leaves the page awaiting a manual Verify.
func (p *Publisher) schedule(pageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	if old, ok := p.timers[pageID]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(p.delay, func() {
		p.mu.Lock()
		if p.timers[pageID] != t {
			p.mu.Unlock()
			return
		}
		delete(p.timers, pageID)
		p.metrics.SetRechecks(len(p.timers))
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), recheckTimeout)
		defer cancel()
		page, err := p.Verify(ctx, pageID)
		if err != nil {
			p.logger.Warn("scheduled re-check failed", "page", pageID, "error", err)
			return
		}
		p.logger.Info("scheduled re-check done", "page", pageID, "status", page.State.Status())
	})
	p.timers[pageID] = t
	p.metrics.SetRechecks(len(p.timers))
}

// cancel drops a pending re-check for pageID, if any.
func (p *Publisher) cancel(pageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[pageID]; ok {
		t.Stop()
		delete(p.timers, pageID)
		p.metrics.SetRechecks(len(p.timers))
	}
}

// Pending reports how many re-checks are armed.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}
