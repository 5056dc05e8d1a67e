package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics engine.
type Metrics struct {
	// Ingestion metrics
	EventsIngested   *prometheus.CounterVec
	IngestRejections *prometheus.CounterVec
	IngestLatency    prometheus.Histogram
	SideEffectErrors *prometheus.CounterVec

	// Aggregation metrics
	AggregationRuns   prometheus.Counter
	AggregationTime   prometheus.Histogram
	AggregationErrors prometheus.Counter
	BucketsClosed     *prometheus.CounterVec

	// Reporting metrics
	ReportRequests prometheus.Counter
	ReportLatency  prometheus.Histogram

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

var (
	// DefaultMetrics is the global metrics instance
	DefaultMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		// Ingestion metrics
		EventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Total number of banner events accepted",
			},
			[]string{"event_type"},
		),
		IngestRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_rejections_total",
				Help:      "Rejected track requests by reason",
			},
			[]string{"reason"},
		),
		IngestLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_latency_seconds",
				Help:      "Event ingestion latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),
		SideEffectErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "side_effect_errors_total",
				Help:      "Counter and session update failures after event append",
			},
			[]string{"op"},
		),

		// Aggregation metrics
		AggregationRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregation_runs_total",
				Help:      "Total aggregation sweeps completed",
			},
		),
		AggregationTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_run_seconds",
				Help:      "Aggregation sweep duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		AggregationErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregation_errors_total",
				Help:      "Bucket aggregation failures",
			},
		),
		BucketsClosed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buckets_closed_total",
				Help:      "Summary buckets finalized by granularity",
			},
			[]string{"granularity"},
		),

		// Reporting metrics
		ReportRequests: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_requests_total",
				Help:      "Total banner reports built",
			},
		),
		ReportLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_latency_seconds",
				Help:      "Report build latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEventIngested records an accepted event.
func (m *Metrics) RecordEventIngested(eventType string) {
	m.EventsIngested.WithLabelValues(eventType).Inc()
}

// RecordIngestRejection records a rejected track request.
func (m *Metrics) RecordIngestRejection(reason string) {
	m.IngestRejections.WithLabelValues(reason).Inc()
}

// RecordIngestLatency records ingestion latency.
func (m *Metrics) RecordIngestLatency(latency time.Duration) {
	m.IngestLatency.Observe(latency.Seconds())
}

// RecordSideEffectError records a counter or session update failure.
func (m *Metrics) RecordSideEffectError(op string) {
	m.SideEffectErrors.WithLabelValues(op).Inc()
}

// RecordAggregationRun records a completed aggregation sweep.
func (m *Metrics) RecordAggregationRun(duration time.Duration) {
	m.AggregationRuns.Inc()
	m.AggregationTime.Observe(duration.Seconds())
}

// RecordAggregationError records a failed bucket aggregation.
func (m *Metrics) RecordAggregationError() {
	m.AggregationErrors.Inc()
}

// RecordBucketClosed records a finalized summary bucket.
func (m *Metrics) RecordBucketClosed(granularity string) {
	m.BucketsClosed.WithLabelValues(granularity).Inc()
}

// RecordReport records a built report.
func (m *Metrics) RecordReport(latency time.Duration) {
	m.ReportRequests.Inc()
	m.ReportLatency.Observe(latency.Seconds())
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}
