package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics for the serve mode
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code", "service"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "service"},
	)

	// Remote API calls, endpoint is "listing" or "comments"
	RedditRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddit_requests_total",
			Help: "Total number of requests made to the Reddit API",
		},
		[]string{"endpoint", "status"},
	)

	RedditRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reddit_request_duration_seconds",
			Help:    "Reddit API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ItemsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddit_items_fetched_total",
			Help: "Total number of listing and comment items returned by the fetcher",
		},
		[]string{"endpoint"},
	)

	ItemsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddit_items_dropped_total",
			Help: "Total number of items excluded by validation or kind filtering",
		},
		[]string{"endpoint"},
	)

	// Sink metrics
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_rows_written_total",
			Help: "Total number of rows written by each sink",
		},
		[]string{"sink", "table"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_sink_errors_total",
			Help: "Total number of failed sink writes",
		},
		[]string{"sink"},
	)

	// Pipeline runs
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// NATS metrics
	NatsMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"subject", "status"},
	)

	ApplicationInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "application_info",
			Help: "Application information",
		},
		[]string{"service", "version", "environment"},
	)
)

// Initialize metrics with default values
func Init(serviceName, version, environment string) {
	ApplicationInfo.WithLabelValues(serviceName, version, environment).Set(1)
}
