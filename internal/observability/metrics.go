package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cap_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingest service.
type Metrics struct {
	Cycles        *prometheus.CounterVec // labels: outcome={ok,not_modified,failed}
	CycleDuration prometheus.Histogram
	Alerts        *prometheus.CounterVec // labels: outcome={created,updated,unchanged,rejected}
	Rejections    *prometheus.CounterVec // labels: kind
	RunnerRunning prometheus.Gauge

	// Geocode dataset metrics.
	GeocodeLookups *prometheus.CounterVec // labels: result={hit,miss,fallback,unknown}
	GeocodeCache   *prometheus.CounterVec // labels: result={hit,miss}

	FetchRequests          *prometheus.CounterVec // labels: format, outcome
	NotificationsPublished prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed source cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of one source cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts seen by the orchestrator by outcome.",
		}, []string{"outcome"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected alerts by kind.",
		}, []string{"kind"}),
		RunnerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runner_running",
			Help:      "1 when the cycle runner is active, 0 when shut down.",
		}),
		GeocodeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_lookups_total",
			Help:      "Geocode dataset lookups by result.",
		}, []string{"result"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocode dataset cache lookups by result.",
		}, []string{"result"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Upstream feed fetches by format and outcome.",
		}, []string{"format", "outcome"}),
		NotificationsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Alert notifications written to Kafka.",
		}),
	}
}

// NewMetrics creates and registers all ingest metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.Alerts,
		m.Rejections,
		m.RunnerRunning,
		m.GeocodeLookups,
		m.GeocodeCache,
		m.FetchRequests,
		m.NotificationsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
