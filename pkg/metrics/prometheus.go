// Package metrics provides Prometheus metrics for the cadenza evaluation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Submission metrics
	submissions         *prometheus.CounterVec
	conversionFailures  prometheus.Counter
	conversionLatency   prometheus.Histogram
	recordingsByStatus  *prometheus.GaugeVec
	portalOpen          prometheus.Gauge
	fallbackScores      prometheus.Counter
	portalRestarts      *prometheus.CounterVec
	lateUpdatesDropped  *prometheus.CounterVec
	artifactDeleteError prometheus.Counter

	// Remote evaluation metrics
	uploadAttempts     *prometheus.CounterVec
	pollAttempts       *prometheus.CounterVec
	evaluations        *prometheus.CounterVec
	evaluationLatency  prometheus.Histogram
	evaluatedScore     prometheus.Histogram
	remoteRequestDurMs *prometheus.HistogramVec

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerBusyCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cadenza",
		subsystem:        "portal",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 240000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_total",
		Help:      "Submissions by outcome (accepted, rejected, conversion_failed, backpressure)",
	}, []string{"outcome"})

	m.conversionFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "conversion_failures_total",
		Help:      "Uploads that could not be converted to canonical audio",
	})

	m.conversionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "conversion_latency_milliseconds",
		Help:      "Time spent converting uploads to canonical audio",
		Buckets:   m.histogramBuckets,
	})

	m.recordingsByStatus = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recordings",
		Help:      "Number of recordings per lifecycle status",
	}, []string{"status"})

	m.portalOpen = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "open",
		Help:      "1 when the portal accepts submissions, 0 otherwise",
	})

	m.fallbackScores = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fallback_scores_total",
		Help:      "Scores assigned locally when the portal closed",
	})

	m.portalRestarts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "restarts_total",
		Help:      "Portal restarts by mode",
	}, []string{"mode"})

	m.lateUpdatesDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "late_updates_dropped_total",
		Help:      "Background updates discarded because the recording changed underneath them",
	}, []string{"reason"})

	m.artifactDeleteError = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "artifact_delete_errors_total",
		Help:      "Media artifacts that could not be deleted",
	})

	m.uploadAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scorer",
		Name:      "upload_attempts_total",
		Help:      "Upload attempts to the remote scorer by outcome",
	}, []string{"outcome"})

	m.pollAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scorer",
		Name:      "poll_attempts_total",
		Help:      "Result polls against the remote scorer by outcome",
	}, []string{"outcome"})

	m.evaluations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scorer",
		Name:      "evaluations_total",
		Help:      "Finished evaluations by final recording status",
	}, []string{"status"})

	m.evaluationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scorer",
		Name:      "evaluation_latency_milliseconds",
		Help:      "End-to-end time from upload to terminal remote status",
		Buckets:   m.histogramBuckets,
	})

	m.evaluatedScore = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scorer",
		Name:      "score",
		Help:      "Distribution of extracted scores",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	m.remoteRequestDurMs = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scorer",
		Name:      "request_duration_milliseconds",
		Help:      "Remote scorer request duration by call",
		Buckets:   m.histogramBuckets,
	}, []string{"call"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "size",
		Help:      "Current number of queued evaluation jobs",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "capacity",
		Help:      "Maximum number of queued evaluation jobs",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "utilization_ratio",
		Help:      "Queue size divided by capacity",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueued_total",
		Help:      "Jobs enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "dequeued_total",
		Help:      "Jobs handed to workers",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueue_errors_total",
		Help:      "Jobs rejected by the queue (full or closed)",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "count",
		Help:      "Configured number of evaluation workers",
	})

	m.workerBusyCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "busy",
		Help:      "Workers currently running an evaluation",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "processing_latency_milliseconds",
		Help:      "Time a worker spends on one job",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "errors_total",
		Help:      "Jobs that ended with an error",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "errors",
		Name:      "by_component_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "errors",
		Name:      "by_endpoint_total",
		Help:      "HTTP errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Submission Metrics Functions.

// RecordSubmission counts a submission attempt by outcome.
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordConversion records a conversion attempt and its latency.
func RecordConversion(latencyMs float64, failed bool) {
	globalManager.conversionLatency.Observe(latencyMs)
	if failed {
		globalManager.conversionFailures.Inc()
	}
}

// UpdateRecordingsByStatus sets the number of recordings in a status.
func UpdateRecordingsByStatus(status string, count int) {
	globalManager.recordingsByStatus.WithLabelValues(status).Set(float64(count))
}

// UpdatePortalOpen reflects the portal admission flag.
func UpdatePortalOpen(open bool) {
	if open {
		globalManager.portalOpen.Set(1)
		return
	}
	globalManager.portalOpen.Set(0)
}

// RecordFallbackScores counts scores assigned on portal close.
func RecordFallbackScores(n int) {
	globalManager.fallbackScores.Add(float64(n))
}

// RecordPortalRestart counts a portal restart.
func RecordPortalRestart(mode string) {
	globalManager.portalRestarts.WithLabelValues(mode).Inc()
}

// RecordLateUpdateDropped counts a discarded background update.
func RecordLateUpdateDropped(reason string) {
	globalManager.lateUpdatesDropped.WithLabelValues(reason).Inc()
}

// RecordArtifactDeleteError counts a failed media artifact deletion.
func RecordArtifactDeleteError() {
	globalManager.artifactDeleteError.Inc()
}

// Remote Evaluation Metrics Functions.

// RecordUploadAttempt counts an upload attempt by outcome.
func RecordUploadAttempt(outcome string) {
	globalManager.uploadAttempts.WithLabelValues(outcome).Inc()
}

// RecordPollAttempt counts a poll by outcome.
func RecordPollAttempt(outcome string) {
	globalManager.pollAttempts.WithLabelValues(outcome).Inc()
}

// RecordEvaluation counts a finished evaluation by final status and records its latency.
func RecordEvaluation(status string, latencyMs float64) {
	globalManager.evaluations.WithLabelValues(status).Inc()
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordScore observes an extracted score.
func RecordScore(score int) {
	globalManager.evaluatedScore.Observe(float64(score))
}

// RecordRemoteRequestDuration records one remote scorer call.
func RecordRemoteRequestDuration(call string, latencyMs float64) {
	globalManager.remoteRequestDurMs.WithLabelValues(call).Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerBusy adjusts the busy worker gauge by delta.
func AddWorkerBusy(delta int) {
	globalManager.workerBusyCount.Add(float64(delta))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
