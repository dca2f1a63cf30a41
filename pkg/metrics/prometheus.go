// Package metrics provides Prometheus metrics for the repsense pipeline.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the repsense service.
type Manager struct {
	namespace        string
	subsystem        string
	latencyBuckets   []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Pipeline metrics
	framesProcessed   *prometheus.CounterVec
	framesWithoutPose prometheus.Counter
	framesDuplicate   prometheus.Counter
	frameLatency      prometheus.Histogram
	validatorResults  *prometheus.CounterVec
	repsCounted       *prometheus.CounterVec
	repsSuppressed    *prometheus.CounterVec
	samplesLoaded     *prometheus.GaugeVec

	// Session registry
	activeSessions  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsClosed  prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - rep event queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Store Metrics
	storeAppendLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "repsense",
		subsystem:        "pipeline",
		latencyBuckets:   defaultLatencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.latencyBuckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.framesProcessed = m.counterVec("frames_processed_total",
		"Total number of frames processed by mode", "mode")
	m.framesWithoutPose = m.counter("frames_without_pose_total",
		"Frames that arrived without landmarks")
	m.framesDuplicate = m.counter("frames_duplicate_total",
		"Frames dropped because their id was already seen")
	m.frameLatency = m.histogram("frame_latency_milliseconds",
		"Time spent processing one frame in milliseconds")
	m.validatorResults = m.counterVec("validator_results_total",
		"Pose validator outcomes", "validator", "valid")
	m.repsCounted = m.counterVec("reps_counted_total",
		"Repetitions counted per class", "class")
	m.repsSuppressed = m.counterVec("reps_suppressed_total",
		"Pose exits ignored because they fell inside the minimum repetition interval", "class")
	m.samplesLoaded = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "samples_loaded", Help: "Pose samples loaded per class",
	}, []string{"class"})

	m.activeSessions = m.gauge("active_sessions", "Number of open sessions")
	m.sessionsCreated = m.counter("sessions_created_total", "Total number of sessions opened")
	m.sessionsClosed = m.counter("sessions_closed_total", "Total number of sessions closed")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = m.gauge("queue_size", "Current size of the rep event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of events enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Time between enqueue and dequeue in milliseconds")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers currently persisting an event")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds")
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.storeAppendLatency = m.histogram("store_append_latency_milliseconds",
		"Rep event store append latency in milliseconds")
	m.storeQueryLatency = m.histogram("store_query_latency_milliseconds",
		"Rep event store query latency in milliseconds")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
}

// RecordFrameProcessed increments the processed frames counter.
func RecordFrameProcessed(stream bool) {
	mode := "single_shot"
	if stream {
		mode = "stream"
	}
	globalManager.framesProcessed.WithLabelValues(mode).Inc()
}

// RecordFrameWithoutPose increments the no-landmark frame counter.
func RecordFrameWithoutPose() {
	globalManager.framesWithoutPose.Inc()
}

// RecordFrameDuplicate increments the duplicate frame counter.
func RecordFrameDuplicate() {
	globalManager.framesDuplicate.Inc()
}

// RecordFrameLatency records frame processing latency in milliseconds.
func RecordFrameLatency(latencyMs float64) {
	globalManager.frameLatency.Observe(latencyMs)
}

// RecordValidatorResult counts one validator outcome.
func RecordValidatorResult(validator string, valid bool) {
	globalManager.validatorResults.WithLabelValues(validator, strconv.FormatBool(valid)).Inc()
}

// RecordRepCounted increments the repetition counter for class.
func RecordRepCounted(class string) {
	globalManager.repsCounted.WithLabelValues(class).Inc()
}

// RecordRepSuppressed increments the debounced repetition counter for class.
func RecordRepSuppressed(class string) {
	globalManager.repsSuppressed.WithLabelValues(class).Inc()
}

// UpdateSamplesLoaded sets the number of samples loaded for class.
func UpdateSamplesLoaded(class string, count int) {
	globalManager.samplesLoaded.WithLabelValues(class).Set(float64(count))
}

// UpdateActiveSessions sets the number of open sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionClosed increments the sessions closed counter.
func RecordSessionClosed() {
	globalManager.sessionsClosed.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
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

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Store Metrics Functions.

// RecordStoreAppendLatency records store append latency.
func RecordStoreAppendLatency(latencyMs float64) {
	globalManager.storeAppendLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records store query latency.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

var runtimeOnce sync.Once

// RegisterRuntimeCollectors adds Go runtime and process metrics (memory,
// goroutines, GC pauses, file descriptors) to the custom registry. Safe to
// call more than once.
func RegisterRuntimeCollectors() {
	runtimeOnce.Do(func() {
		customRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}
