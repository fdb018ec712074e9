// Package metrics exposes spark's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spark"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Searches          *prometheus.CounterVec
	GeneratorDuration *prometheus.HistogramVec
	Promotions        prometheus.Counter
	PublishAttempts   *prometheus.CounterVec
	Verifications     *prometheus.CounterVec
	RechecksScheduled prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by outcome (ok, empty, busy, error).",
		}, []string{"outcome"}),
		GeneratorDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generator_duration_seconds",
			Help:      "Content generator call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"backend"}),
		Promotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Tokens promoted into pages.",
		}),
		PublishAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_attempts_total",
			Help:      "Publish attempts by strategy and resulting status.",
		}, []string{"strategy", "status"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Page URL verifications by outcome.",
		}, []string{"outcome"}),
		RechecksScheduled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rechecks_scheduled",
			Help:      "Pending one-shot publish re-checks.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGenerator(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.GeneratorDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *Metrics) ObservePromotion() {
	if m == nil {
		return
	}
	m.Promotions.Inc()
}

func (m *Metrics) ObservePublish(strategy, status string) {
	if m == nil {
		return
	}
	m.PublishAttempts.WithLabelValues(strategy, status).Inc()
}

func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetRechecks(n int) {
	if m == nil {
		return
	}
	m.RechecksScheduled.Set(float64(n))
}
