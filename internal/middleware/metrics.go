package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Update metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_messages_received_total",
		Help: "Total number of updates received",
	}, []string{"kind"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_messages_processed_total",
		Help: "Total number of updates processed",
	}, []string{"status"})

	// Relay metrics
	relayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telegram_bot_relay_duration_seconds",
		Help:    "Duration of streamed completions",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	relayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_relay_total",
		Help: "Total number of streamed completions",
	}, []string{"outcome"})

	streamDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telegram_bot_stream_deltas_total",
		Help: "Total number of content deltas received from the provider",
	})

	messageEdits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_message_edits_total",
		Help: "Total number of progressive message edits",
	}, []string{"result"})

	// Workflow metrics
	accessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_access_decisions_total",
		Help: "Total number of access decisions by administrators",
	}, []string{"decision", "status"})

	purchaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_purchase_transitions_total",
		Help: "Total number of purchase state machine events",
	}, []string{"event", "status"})

	broadcastMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_broadcast_messages_total",
		Help: "Total number of broadcast deliveries",
	}, []string{"status"})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telegram_bot_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telegram_bot_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	activeUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telegram_bot_active_users",
		Help: "Number of users with queued or running updates",
	})
)

// Metrics provides methods to record metrics. A nil *Metrics records nothing.
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received update by kind
func (m *Metrics) RecordMessageReceived(kind string) {
	if m == nil {
		return
	}
	messagesReceived.WithLabelValues(kind).Inc()
}

// RecordMessageProcessed records a processed update
func (m *Metrics) RecordMessageProcessed(status string) {
	if m == nil {
		return
	}
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordRelay records a finished completion relay
func (m *Metrics) RecordRelay(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	relayDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	relayTotal.WithLabelValues(outcome).Inc()
}

// RecordDelta counts one streamed content delta
func (m *Metrics) RecordDelta() {
	if m == nil {
		return
	}
	streamDeltas.Inc()
}

// RecordEdit counts one message edit attempt
func (m *Metrics) RecordEdit(result string) {
	if m == nil {
		return
	}
	messageEdits.WithLabelValues(result).Inc()
}

// RecordAccessDecision counts an administrator decision
func (m *Metrics) RecordAccessDecision(decision, status string) {
	if m == nil {
		return
	}
	accessDecisions.WithLabelValues(decision, status).Inc()
}

// RecordPurchaseTransition counts a purchase event
func (m *Metrics) RecordPurchaseTransition(event, status string) {
	if m == nil {
		return
	}
	purchaseTransitions.WithLabelValues(event, status).Inc()
}

// RecordBroadcast counts one broadcast delivery
func (m *Metrics) RecordBroadcast(status string) {
	if m == nil {
		return
	}
	broadcastMessages.WithLabelValues(status).Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	if m == nil {
		return
	}
	rateLimitExceeded.Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetActiveUsers sets the number of active users
func (m *Metrics) SetActiveUsers(count float64) {
	if m == nil {
		return
	}
	activeUsers.Set(count)
}

// NewMetricsRouter serves prometheus metrics at path and a health check
func NewMetricsRouter(path string) *mux.Router {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}

// NewMetricsServer builds the metrics HTTP server
func NewMetricsServer(port int, path string) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewMetricsRouter(path),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	return NewMetricsServer(port, path).ListenAndServe()
}
