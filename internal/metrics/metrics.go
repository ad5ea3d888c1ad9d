// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Recommendation pipeline
	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_pipeline_stage_duration_seconds",
			Help:    "Duration of recommendation pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // "embed", "query", "rank"
	)

	RecommendationCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommender_candidates_after_filter",
			Help:    "Number of candidates left after rule filtering",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	RecommendationsEmpty = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_empty_results_total",
			Help: "Total number of queries where no recipe survived filtering",
		},
	)

	FilteredOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_filtered_out_total",
			Help: "Candidates dropped by each filter",
		},
		[]string{"reason"}, // "cuisine", "diet", "allergy", "condition"
	)

	// Ingestion
	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_ingest_rows_total",
			Help: "Dataset rows processed by ingestion",
		},
		[]string{"outcome"}, // "indexed", "skipped"
	)

	IngestBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommender_ingest_batch_duration_seconds",
			Help:    "Duration of one embed-and-upsert ingestion batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Index backend
	IndexErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_index_errors_total",
			Help: "Vector index and embedding provider errors",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recommender_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStage records the duration of a pipeline stage started at start.
func ObserveStage(stage string, start time.Time) {
	RecommendationDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
