// Package metrics provides Prometheus metrics for the leadpulse pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime channel status values exported by the realtime_status gauge.
const (
	RealtimeDisconnected = 0
	RealtimeConnecting   = 1
	RealtimeSubscribed   = 2
	RealtimeErrored      = 3
)

var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000}

var defaultPointsBuckets = []float64{0, 1, 5, 10, 15, 25, 50, 100}

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	pointsBuckets  []float64
	registry       prometheus.Registerer

	// Tracking
	eventsTracked *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	pointsAwarded prometheus.Histogram
	ruleMatches   *prometheus.CounterVec
	rulesLoaded   prometheus.Gauge

	// Cache
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheEntries       prometheus.Gauge
	cacheRetries       *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Protection and monitoring
	rateLimitHits *prometheus.CounterVec
	monitorAlerts *prometheus.CounterVec

	// Realtime
	realtimeStatus    prometheus.Gauge
	realtimeUpdates   *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
	hotLeads          prometheus.Gauge

	// Ingestion
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected *prometheus.CounterVec
	workerCount   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
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
		namespace:      "leadpulse",
		subsystem:      "pipeline",
		latencyBuckets: defaultLatencyBuckets,
		pointsBuckets:  defaultPointsBuckets,
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.eventsTracked = m.counterVec("events_tracked_total", "Behavior events persisted, by event type", "event_type")
	m.eventsDropped = m.counterVec("events_dropped_total", "Tracking calls dropped before persistence, by reason", "reason")
	m.pointsAwarded = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "points_awarded",
		Help:    "Points awarded per persisted event",
		Buckets: m.pointsBuckets,
	})
	m.ruleMatches = m.counterVec("rule_matches_total", "Rule resolution outcomes", "outcome")
	m.rulesLoaded = m.gauge("rules_loaded", "Active scoring rules in the current rule set")

	m.cacheHits = m.counterVec("cache_hits_total", "Query cache hits by tier", "tier")
	m.cacheMisses = m.counterVec("cache_misses_total", "Query cache misses by tier", "tier")
	m.cacheInvalidations = m.counterVec("cache_invalidations_total", "Cache invalidations by logical write", "write")
	m.cacheEntries = m.gauge("cache_entries", "Entries held by the query cache")
	m.cacheRetries = m.counterVec("cache_fetch_retries_total", "Fetch retries on cache miss by tier", "tier")

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "store_latency_milliseconds",
		Help:    "Store call latency in milliseconds",
		Buckets: m.latencyBuckets,
	}, []string{"relation", "operation"})
	m.storeErrors = m.counterVec("store_errors_total", "Store failures by relation and error kind", "relation", "kind")

	m.rateLimitHits = m.counterVec("rate_limit_hits_total", "Calls rejected by the rate limiter", "scope")
	m.monitorAlerts = m.counterVec("monitor_alerts_total", "Performance alerts raised by type", "type")

	m.realtimeStatus = m.gauge("realtime_status", "Realtime channel state (0 disconnected, 1 connecting, 2 subscribed, 3 errored)")
	m.realtimeUpdates = m.counterVec("realtime_updates_total", "Realtime updates emitted by kind", "kind")
	m.notificationsSent = m.counterVec("notifications_total", "User-facing notifications by kind and sink outcome", "kind", "outcome")
	m.hotLeads = m.gauge("hot_leads", "Hot leads seen in the last listing")

	m.queueSize = m.gauge("queue_size", "Tracking requests waiting in the ingestion queue")
	m.queueCapacity = m.gauge("queue_capacity", "Ingestion queue capacity")
	m.queueRejected = m.counterVec("queue_rejected_total", "Tracking requests rejected by the queue", "reason")
	m.workerCount = m.gauge("worker_count", "Tracking workers running")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordEventTracked counts a persisted event and its points.
func RecordEventTracked(eventType string, points int) {
	globalManager.eventsTracked.WithLabelValues(eventType).Inc()
	globalManager.pointsAwarded.Observe(float64(points))
}

// RecordEventDropped counts a tracking call that never reached the store.
func RecordEventDropped(reason string) {
	globalManager.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordRuleMatch records whether rule resolution found a rule.
func RecordRuleMatch(matched bool) {
	outcome := "no_match"
	if matched {
		outcome = "match"
	}
	globalManager.ruleMatches.WithLabelValues(outcome).Inc()
}

// UpdateRulesLoaded sets the size of the active rule set.
func UpdateRulesLoaded(n int) {
	globalManager.rulesLoaded.Set(float64(n))
}

// RecordCacheHit counts a cache hit for tier.
func RecordCacheHit(tier string) {
	globalManager.cacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss counts a cache miss for tier.
func RecordCacheMiss(tier string) {
	globalManager.cacheMisses.WithLabelValues(tier).Inc()
}

// RecordCacheRetry counts one retry of a fetch behind tier.
func RecordCacheRetry(tier string) {
	globalManager.cacheRetries.WithLabelValues(tier).Inc()
}

// RecordCacheInvalidation counts an invalidation triggered by write.
func RecordCacheInvalidation(write string) {
	globalManager.cacheInvalidations.WithLabelValues(write).Inc()
}

// UpdateCacheEntries sets the number of cache entries.
func UpdateCacheEntries(n int) {
	globalManager.cacheEntries.Set(float64(n))
}

// RecordStoreCall records latency of a store call.
func RecordStoreCall(relation, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(relation, operation).Observe(latencyMs)
}

// RecordStoreError records a classified store failure.
func RecordStoreError(relation, kind string) {
	globalManager.storeErrors.WithLabelValues(relation, kind).Inc()
}

// RecordRateLimitHit counts a rejected call for scope.
func RecordRateLimitHit(scope string) {
	globalManager.rateLimitHits.WithLabelValues(scope).Inc()
}

// RecordMonitorAlert counts a performance alert.
func RecordMonitorAlert(alertType string) {
	globalManager.monitorAlerts.WithLabelValues(alertType).Inc()
}

// UpdateRealtimeStatus sets the realtime channel state gauge.
func UpdateRealtimeStatus(status int) error {
	if status < RealtimeDisconnected || status > RealtimeErrored {
		return ErrUnknownStatus
	}
	globalManager.realtimeStatus.Set(float64(status))
	return nil
}

// RecordRealtimeUpdate counts an emitted realtime update.
func RecordRealtimeUpdate(kind string) {
	globalManager.realtimeUpdates.WithLabelValues(kind).Inc()
}

// RecordNotification counts a notification delivery attempt.
func RecordNotification(kind string, delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	globalManager.notificationsSent.WithLabelValues(kind, outcome).Inc()
}

// UpdateHotLeads sets the hot leads gauge.
func UpdateHotLeads(n int) {
	globalManager.hotLeads.Set(float64(n))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts an enqueue that was refused.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
