package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "running_index"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// KMA provider metrics.
	KMARequests         *prometheus.CounterVec   // labels: endpoint={ultra-ncst,ultra-fcst}, outcome={success,no_data,error,unavailable}
	KMARequestDuration  *prometheus.HistogramVec // labels: endpoint
	KMACache            *prometheus.CounterVec   // labels: endpoint, result={hit,miss}
	PrecipParseFailures prometheus.Counter

	// Scoring.
	Scores *prometheus.CounterVec // labels: grade

	// Publishing pipeline metrics.
	SnapshotsPublished prometheus.Counter
	PollErrors         prometheus.Counter
	PollCycleDuration  prometheus.Histogram
	PipelineRunning    prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.KMARequests,
		m.KMARequestDuration,
		m.KMACache,
		m.PrecipParseFailures,
		m.Scores,
		m.SnapshotsPublished,
		m.PollErrors,
		m.PollCycleDuration,
		m.PipelineRunning,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		KMARequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kma_requests_total",
			Help:      "KMA API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		KMARequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kma_request_duration_seconds",
			Help:      "KMA API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"endpoint"}),
		KMACache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kma_cache_total",
			Help:      "KMA response cache lookups by endpoint and result.",
		}, []string{"endpoint", "result"}),
		PrecipParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precip_parse_failures_total",
			Help:      "Precipitation values that could not be decoded.",
		}),
		Scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_total",
			Help:      "Running index results by grade.",
		}, []string{"grade"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Total snapshots written to the sink topic.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Poll points that failed to fetch or score.",
		}),
		PollCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of a complete poll-score-publish cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the publishing pipeline is active, 0 when shut down.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when place name geocoding is enabled, 0 otherwise.",
		}),
	}
}
