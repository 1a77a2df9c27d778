package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome values for ObservationsTotal.
const (
	OutcomeScored       = "scored"
	OutcomeInsufficient = "insufficient_data"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
)

// Metrics groups the collectors exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	ObservationsTotal *prometheus.CounterVec
	DecisionsTotal    *prometheus.CounterVec
	FlagsTotal        *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
	ScoreHistogram    prometheus.Histogram
	QueueDepth        prometheus.Gauge
	DeactivatedTotal  prometheus.Counter
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ObservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listingradar",
			Name:      "observations_total",
			Help:      "Listing observations processed, by outcome.",
		}, []string{"outcome"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listingradar",
			Name:      "decisions_total",
			Help:      "Decisions produced, by label.",
		}, []string{"label"}),
		FlagsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listingradar",
			Name:      "risk_flags_total",
			Help:      "Risk flags raised, by flag.",
		}, []string{"flag"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listingradar",
			Name:      "notifications_total",
			Help:      "Notification attempts, by result.",
		}, []string{"result"}),
		ScoreHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "listingradar",
			Name:      "score",
			Help:      "Distribution of opportunity scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "listingradar",
			Name:      "ingest_queue_depth",
			Help:      "Observations waiting for the single writer.",
		}),
		DeactivatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "listingradar",
			Name:      "listings_deactivated_total",
			Help:      "Listings deactivated by the stale sweep.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ObservationsTotal,
		m.DecisionsTotal,
		m.FlagsTotal,
		m.NotificationsSent,
		m.ScoreHistogram,
		m.QueueDepth,
		m.DeactivatedTotal,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
