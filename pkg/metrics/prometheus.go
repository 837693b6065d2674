// Package metrics provides Prometheus metrics for the pacer service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the pacer service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Estimation
	predictions       *prometheus.CounterVec
	signalOutcomes    *prometheus.CounterVec
	estimateLatency   prometheus.Histogram
	segmentLatency    prometheus.Histogram
	segmentWindows    prometheus.Histogram
	baselineUpdates   *prometheus.CounterVec
	backtestMonths    *prometheus.CounterVec
	backtestDuration  prometheus.Histogram
	athletesTotal     prometheus.Gauge
	historyEntriesSet prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
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
		namespace:        "pacer",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels, Buckets: buckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)
	latency := []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

	m.predictions = auto.NewCounterVec(
		m.counterOpts("predictions_total", "Fitness predictions by outcome"),
		[]string{"status"})
	m.signalOutcomes = auto.NewCounterVec(
		m.counterOpts("signal_outcomes_total", "Signal generator results by signal and outcome"),
		[]string{"signal", "outcome"})
	m.estimateLatency = auto.NewHistogram(
		m.histogramOpts("estimate_latency_milliseconds", "End-to-end estimate latency in milliseconds", latency))
	m.segmentLatency = auto.NewHistogram(
		m.histogramOpts("segment_search_latency_milliseconds", "Best-segment search latency in milliseconds", latency))
	m.segmentWindows = auto.NewHistogram(
		m.histogramOpts("segment_windows_evaluated", "Candidate windows evaluated per search",
			prometheus.ExponentialBuckets(10, 4, 8)))
	m.baselineUpdates = auto.NewCounterVec(
		m.counterOpts("baseline_updates_total", "Stored baseline updates by direction"),
		[]string{"direction"})
	m.backtestMonths = auto.NewCounterVec(
		m.counterOpts("backtest_months_total", "Backtest months by outcome"),
		[]string{"outcome"})
	m.backtestDuration = auto.NewHistogram(
		m.histogramOpts("backtest_duration_milliseconds", "Full backtest run duration in milliseconds",
			prometheus.ExponentialBuckets(10, 3, 10)))
	m.athletesTotal = auto.NewGauge(
		m.gaugeOpts("athletes_total", "Athletes known to the store"))
	m.historyEntriesSet = auto.NewCounter(
		m.counterOpts("history_entries_written_total", "History entries written"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", latency),
		[]string{"endpoint", "method", "status_code"})

	m.repositoryUpdateLatency = auto.NewHistogram(
		m.histogramOpts("repository_update_latency_milliseconds", "Repository write latency in milliseconds", latency))
	m.repositoryQueryLatency = auto.NewHistogram(
		m.histogramOpts("repository_query_latency_milliseconds", "Repository read latency in milliseconds", latency))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the recalculation queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size over capacity"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueues"))
	m.queueProcessingLatency = auto.NewHistogram(
		m.histogramOpts("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", nil))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of active workers"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Number of idle workers"))
	m.workerMessagesPerSecond = auto.NewGauge(
		m.gaugeOpts("worker_messages_per_second", "Average jobs processed per second"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Job processing latency in milliseconds", latency))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs that failed"))

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component"),
		[]string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"})
}

// Enabled reports whether m records observations.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// RefreshInterval is how often background updaters should refresh gauges.
func (m *Manager) RefreshInterval() time.Duration {
	return time.Duration(m.refreshInterval.Load())
}

// Configure applies WithMetricsEnabled and WithRefreshInterval to the
// global manager. Naming and registry options only take effect in
// NewManager and are ignored here.
func Configure(opts ...Option) {
	m := globalManager
	next := &Manager{}
	next.enabled.Store(m.Enabled())
	next.refreshInterval.Store(int64(m.RefreshInterval()))
	for _, opt := range opts {
		opt(next)
	}
	m.enabled.Store(next.Enabled())
	m.refreshInterval.Store(int64(next.RefreshInterval()))
}

// Enabled reports whether the global manager records observations.
func Enabled() bool { return globalManager.Enabled() }

// RefreshInterval returns the global gauge refresh interval.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// active returns the global manager, or nil when recording is disabled.
func active() *Manager {
	if m := globalManager; m.Enabled() {
		return m
	}
	return nil
}

// RecordPrediction counts one prediction request by status.
func RecordPrediction(status string) {
	m := active()
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(status).Inc()
}

// RecordSignalOutcome counts one generator result.
func RecordSignalOutcome(signal, outcome string) {
	m := active()
	if m == nil {
		return
	}
	m.signalOutcomes.WithLabelValues(signal, outcome).Inc()
}

// RecordEstimateLatency records an estimate's latency in milliseconds.
func RecordEstimateLatency(latencyMs float64) {
	m := active()
	if m == nil {
		return
	}
	m.estimateLatency.Observe(latencyMs)
}

// RecordSegmentSearch records one best-segment search.
func RecordSegmentSearch(latencyMs float64, windows int) {
	m := active()
	if m == nil {
		return
	}
	m.segmentLatency.Observe(latencyMs)
	m.segmentWindows.Observe(float64(windows))
}

// RecordBaselineUpdate counts a baseline change by direction.
func RecordBaselineUpdate(direction string) {
	m := active()
	if m == nil {
		return
	}
	m.baselineUpdates.WithLabelValues(direction).Inc()
}

// RecordBacktestMonth counts one backtest month by outcome.
func RecordBacktestMonth(outcome string) {
	m := active()
	if m == nil {
		return
	}
	m.backtestMonths.WithLabelValues(outcome).Inc()
}

// RecordBacktestDuration records a backtest run duration in milliseconds.
func RecordBacktestDuration(ms float64) {
	m := active()
	if m == nil {
		return
	}
	m.backtestDuration.Observe(ms)
}

// UpdateAthletesTotal sets the number of known athletes.
func UpdateAthletesTotal(count int) {
	m := active()
	if m == nil {
		return
	}
	m.athletesTotal.Set(float64(count))
}

// AddHistoryEntriesWritten adds n written history entries.
func AddHistoryEntriesWritten(n int) {
	m := active()
	if m == nil {
		return
	}
	if n > 0 {
		m.historyEntriesSet.Add(float64(n))
	}
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	m := active()
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	m := active()
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRepositoryUpdateLatency records repository write latency in milliseconds.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	m := active()
	if m == nil {
		return
	}
	m.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency in milliseconds.
func RecordRepositoryQueryLatency(latencyMs float64) {
	m := active()
	if m == nil {
		return
	}
	m.repositoryQueryLatency.Observe(latencyMs)
}

// UpdateQueueSize updates the current queue size.
func UpdateQueueSize(size int) {
	m := active()
	if m == nil {
		return
	}
	m.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	m := active()
	if m == nil {
		return
	}
	m.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	m := active()
	if m == nil {
		return
	}
	m.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	m := active()
	if m == nil {
		return
	}
	m.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	m := active()
	if m == nil {
		return
	}
	m.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	m := active()
	if m == nil {
		return
	}
	m.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records enqueue latency in milliseconds.
func RecordQueueProcessingLatency(latencyMs float64) {
	m := active()
	if m == nil {
		return
	}
	m.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	m := active()
	if m == nil {
		return
	}
	m.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	m := active()
	if m == nil {
		return
	}
	m.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	m := active()
	if m == nil {
		return
	}
	m.workerIdleCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the worker throughput.
func UpdateWorkerMessagesPerSecond(rate float64) {
	m := active()
	if m == nil {
		return
	}
	m.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records job latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	m := active()
	if m == nil {
		return
	}
	m.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	m := active()
	if m == nil {
		return
	}
	m.workerErrorRate.Inc()
}

// RecordErrorByComponent increments errors for a component.
func RecordErrorByComponent(component, errorType string) {
	m := active()
	if m == nil {
		return
	}
	m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType increments errors by type and severity.
func RecordErrorByType(errorType, severity string) {
	m := active()
	if m == nil {
		return
	}
	m.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
