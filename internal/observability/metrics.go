package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petpals_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreQueryLatency records document store latency by backend, operation and collection.
	StoreQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "petpals_store_query_latency_seconds",
		Help:    "Document store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation", "collection"})

	// StoreErrors counts document store errors by backend and operation.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petpals_store_errors_total",
		Help: "Total number of document store errors",
	}, []string{"backend", "operation"})

	// CascadeResidual counts post deletions that left storage behind, by stage.
	CascadeResidual = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petpals_post_cascade_residual_total",
		Help: "Post deletions whose image or comment cleanup failed",
	}, []string{"stage"})

	// MapQueryFailures counts map loads that returned an empty result because the store failed.
	MapQueryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petpals_map_query_failures_total",
		Help: "Map queries degraded to an empty result",
	}, []string{"query"})

	// AuthorLookups counts author profile lookups by outcome.
	AuthorLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petpals_author_lookups_total",
		Help: "Author profile lookups by outcome",
	}, []string{"outcome"})

	// LiveSubscriptions is the gauge of open live query subscriptions per stream.
	LiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "petpals_live_subscriptions",
		Help: "Number of open live subscriptions",
	}, []string{"stream"})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petpals_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts snapshots dropped because a client fell behind.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petpals_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"stream", "reason"})
)

// StoreMetrics records latency for one store backend.
type StoreMetrics struct {
	backend string
}

// NewStoreMetrics returns a StoreMetrics for the named backend.
func NewStoreMetrics(backend string) *StoreMetrics {
	return &StoreMetrics{backend: backend}
}

// ObserveQuery records the latency of a store operation.
func (m *StoreMetrics) ObserveQuery(operation, collection string, start time.Time) {
	StoreQueryLatency.WithLabelValues(m.backend, operation, collection).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records latency when called (e.g. defer).
func (m *StoreMetrics) TrackQuery(operation, collection string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, collection, start)
	}
}

// RecordWebSocketEvent increments the WebSocket events counter for the event type.
func RecordWebSocketEvent(eventType string) {
	WebSocketEventsTotal.WithLabelValues(eventType).Inc()
}
