package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector provides application metrics collection
type Collector struct {
	registry *prometheus.Registry

	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Query Metrics
	QueryRejectionsTotal *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	QueryRowsReturned    prometheus.Histogram

	// Cache Metrics
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	CacheSharedTotal    prometheus.Counter
	CacheEntries        prometheus.Gauge

	// Storage Metrics
	StorageRetriesTotal prometheus.Counter
	StorageErrorsTotal  *prometheus.CounterVec

	// Analysis Metrics
	TrendFitDuration prometheus.Histogram

	// Import Metrics
	ImportRowsTotal   prometheus.Counter
	ImportErrorsTotal *prometheus.CounterVec
	ImportDuration    prometheus.Histogram
}

// NewCollector creates a new metrics collector backed by its own registry.
// A dedicated registry keeps collectors independent between processes and
// tests, unlike the default global one.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		QueryRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_rejections_total",
				Help:      "Total number of statements rejected by the query gateway, by reason",
			},
			[]string{"kind"},
		),

		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Statement execution duration in seconds by operation",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0},
			},
			[]string{"operation"},
		),

		QueryRowsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_rows_returned",
				Help:      "Number of rows returned per executed statement",
				Buckets:   []float64{1, 10, 50, 100, 200, 500, 1000, 5000, 10000},
			},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache lookups answered from a live entry",
			},
		),

		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache lookups that required computation",
			},
		),

		CacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of entries evicted by the size bound",
			},
		),

		CacheSharedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_shared_total",
				Help:      "Total number of callers served by an in-flight computation they did not start",
			},
		),

		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Current number of cached entries",
			},
		),

		StorageRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_retries_total",
				Help:      "Total number of retried statements after a busy/locked storage error",
			},
		),

		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of storage errors by kind",
			},
			[]string{"kind"},
		),

		TrendFitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trend_fit_duration_seconds",
				Help:      "Duration of yearly aggregation and trend fitting in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0},
			},
		),

		ImportRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_rows_total",
				Help:      "Total number of rows inserted by the importer",
			},
		),

		ImportErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_errors_total",
				Help:      "Total number of importer errors by type",
			},
			[]string{"error_type"},
		),

		ImportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_duration_seconds",
				Help:      "Duration of a full file import in seconds",
				Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
		),
	}

	registry.MustRegister(
		c.APIRequestsTotal,
		c.APIRequestDuration,
		c.APIErrorsTotal,
		c.QueryRejectionsTotal,
		c.QueryDuration,
		c.QueryRowsReturned,
		c.CacheHitsTotal,
		c.CacheMissesTotal,
		c.CacheEvictionsTotal,
		c.CacheSharedTotal,
		c.CacheEntries,
		c.StorageRetriesTotal,
		c.StorageErrorsTotal,
		c.TrendFitDuration,
		c.ImportRowsTotal,
		c.ImportErrorsTotal,
		c.ImportDuration,
	)

	return c
}

// Registry returns the underlying registry for exposure via promhttp.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordRejection increments the gateway rejection counter
func (c *Collector) RecordRejection(kind string) {
	c.QueryRejectionsTotal.WithLabelValues(kind).Inc()
}

// RecordStorageError increments storage error counter
func (c *Collector) RecordStorageError(kind string) {
	c.StorageErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordImportError increments importer error counter
func (c *Collector) RecordImportError(errorType string) {
	c.ImportErrorsTotal.WithLabelValues(errorType).Inc()
}
