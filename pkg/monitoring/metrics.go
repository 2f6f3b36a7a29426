package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection.
// A nil *MetricsCollector is valid and records nothing.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	ledgerReadsTotal       *prometheus.CounterVec
	ledgerReadDuration     *prometheus.HistogramVec
	partialFailures        *prometheus.CounterVec
	transactionsTotal      *prometheus.CounterVec
	transactionDuration    *prometheus.HistogramVec
	metadataFetchesTotal   *prometheus.CounterVec
	metadataCacheHitsTotal prometheus.Counter
	metadataDegradedTotal  *prometheus.CounterVec
	workflowErrorsTotal    *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector with its own registry
func NewMetricsCollector(serviceName string) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		ledgerReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_reads_total",
				Help: "Total number of ledger view calls",
			},
			[]string{"function", "status", "service"},
		),
		ledgerReadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_read_duration_seconds",
				Help:    "Duration of ledger view calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"function", "service"},
		),
		partialFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_read_partial_failures_total",
				Help: "Sub-queries of batched reads that degraded to empty results",
			},
			[]string{"query", "service"},
		),
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Ledger transaction lifecycle transitions",
			},
			[]string{"function", "state", "service"},
		),
		transactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_transaction_duration_seconds",
				Help:    "Time from submission to finalization in seconds",
				Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"function", "state", "service"},
		),
		metadataFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metadata_fetches_total",
				Help: "Content store fetches",
			},
			[]string{"status", "service"},
		),
		metadataCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "metadata_cache_hits_total",
				Help: "Metadata resolutions served from the session cache",
			},
		),
		metadataDegradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metadata_degraded_total",
				Help: "Metadata resolutions that fell back to a synthesized record",
			},
			[]string{"entity", "service"},
		),
		workflowErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_errors_total",
				Help: "Workflow failures by error kind",
			},
			[]string{"workflow", "kind", "service"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ledgerReadsTotal,
		m.ledgerReadDuration,
		m.partialFailures,
		m.transactionsTotal,
		m.transactionDuration,
		m.metadataFetchesTotal,
		m.metadataCacheHitsTotal,
		m.metadataDegradedTotal,
		m.workflowErrorsTotal,
	)

	return m
}

// Registry exposes the underlying registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordLedgerRead records a view call
func (m *MetricsCollector) RecordLedgerRead(function string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.ledgerReadsTotal.WithLabelValues(function, statusLabel(err), m.serviceName).Inc()
	m.ledgerReadDuration.WithLabelValues(function, m.serviceName).Observe(duration.Seconds())
}

// RecordPartialFailure records a failed sub-query of a batched read
func (m *MetricsCollector) RecordPartialFailure(query string) {
	if m == nil {
		return
	}
	m.partialFailures.WithLabelValues(query, m.serviceName).Inc()
}

// RecordTransactionState records a transaction lifecycle transition
func (m *MetricsCollector) RecordTransactionState(function, state string) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(function, state, m.serviceName).Inc()
}

// RecordTransactionFinalized records the time a transaction spent between submission and its final state
func (m *MetricsCollector) RecordTransactionFinalized(function, state string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transactionDuration.WithLabelValues(function, state, m.serviceName).Observe(duration.Seconds())
}

// RecordMetadataFetch records a content store fetch
func (m *MetricsCollector) RecordMetadataFetch(err error) {
	if m == nil {
		return
	}
	m.metadataFetchesTotal.WithLabelValues(statusLabel(err), m.serviceName).Inc()
}

// RecordMetadataCacheHit records a resolution served from cache
func (m *MetricsCollector) RecordMetadataCacheHit() {
	if m == nil {
		return
	}
	m.metadataCacheHitsTotal.Inc()
}

// RecordMetadataDegraded records a synthesized metadata record
func (m *MetricsCollector) RecordMetadataDegraded(entity string) {
	if m == nil {
		return
	}
	m.metadataDegradedTotal.WithLabelValues(entity, m.serviceName).Inc()
}

// RecordWorkflowError records a workflow failure
func (m *MetricsCollector) RecordWorkflowError(workflow, kind string) {
	if m == nil {
		return
	}
	m.workflowErrorsTotal.WithLabelValues(workflow, kind, m.serviceName).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware creates middleware for HTTP request metrics
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		m.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.StatusCode), time.Since(start))
	})
}

// ResponseWriter wraps http.ResponseWriter to capture status code
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

// WriteHeader captures the status code
func (rw *ResponseWriter) WriteHeader(code int) {
	rw.StatusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
