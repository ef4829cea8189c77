// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequestDuration tracks backend call duration per operation.
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation", "status"},
	)

	// BackendRequestsTotal tracks total backend calls per operation.
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_backend_requests_total",
			Help: "Total backend requests",
		},
		[]string{"operation", "status"},
	)

	// MessagesSent tracks messages appended to the active conversation.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages appended to the active conversation",
		},
		[]string{"role"},
	)

	// RevealDuration tracks typewriter reveal duration per outcome.
	RevealDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_reveal_duration_seconds",
			Help:    "Typewriter reveal duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// RevealCancellations tracks reveals cut short by the user.
	RevealCancellations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_reveal_cancellations_total",
			Help: "Typewriter reveals cancelled before completion",
		},
	)

	// FallbackReplies tracks completion failures degraded to the fixed reply.
	FallbackReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_fallback_replies_total",
			Help: "Completion failures answered with the fallback message",
		},
	)

	// SessionsKnown tracks the size of the local session list.
	SessionsKnown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_known",
			Help: "Session summaries currently held by the session store",
		},
	)

	// ServerRequestDuration tracks dev backend HTTP request duration.
	ServerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devserver_request_duration_seconds",
			Help:    "Dev backend request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// ServerRequestsTotal tracks total dev backend HTTP requests.
	ServerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devserver_requests_total",
			Help: "Total dev backend requests",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordBackendRequest records one backend call.
func RecordBackendRequest(operation, status string, duration float64) {
	BackendRequestDuration.WithLabelValues(operation, status).Observe(duration)
	BackendRequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordReveal records one finished typewriter reveal.
func RecordReveal(cancelled bool, duration float64) {
	outcome := "complete"
	if cancelled {
		outcome = "cancelled"
		RevealCancellations.Inc()
	}
	RevealDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordServerRequest records one dev backend HTTP request.
func RecordServerRequest(method, path, status string, duration float64) {
	ServerRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	ServerRequestsTotal.WithLabelValues(method, path, status).Inc()
}
