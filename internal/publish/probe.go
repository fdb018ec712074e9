package publish

import (
	"context"
	"net/http"
	"time"
)

// Prober checks whether a published URL is being served.
type Prober interface {
	Probe(ctx context.Context, url string) bool
}

// HTTPProber issues a HEAD request; only a 2xx answer counts as live.
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
