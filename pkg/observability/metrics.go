// Package observability exposes the service's prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the organization engine
type Metrics struct {
	registry *prometheus.Registry

	EditsTotal          prometheus.Counter
	BatchesTotal        *prometheus.CounterVec
	FallbacksTotal      prometheus.Counter
	RefinementsRejected prometheus.Counter
	OrganizeDuration    prometheus.Histogram
	PendingLines        prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		EditsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brainflow",
			Name:      "edits_total",
			Help:      "Tracked edit events recorded in the line map.",
		}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brainflow",
			Name:      "batches_total",
			Help:      "Organization runs by outcome.",
		}, []string{"outcome"}),
		FallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brainflow",
			Name:      "fallbacks_total",
			Help:      "Batches placed by lexical fallback after an oracle failure.",
		}),
		RefinementsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brainflow",
			Name:      "refinements_rejected_total",
			Help:      "Oracle refinements discarded by a quality gate.",
		}),
		OrganizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "brainflow",
			Name:      "organize_duration_seconds",
			Help:      "Duration of organization runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		PendingLines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brainflow",
			Name:      "pending_lines",
			Help:      "Lines whose latest version awaits organization.",
		}),
	}

	registry.MustRegister(
		m.EditsTotal,
		m.BatchesTotal,
		m.FallbacksTotal,
		m.RefinementsRejected,
		m.OrganizeDuration,
		m.PendingLines,
	)
	return m
}

// Handler returns the HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
