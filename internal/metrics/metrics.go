// Package metrics provides Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec

	// Dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	FlowOutcomeTotal *prometheus.CounterVec

	// External API metrics
	ExternalRequestsTotal   *prometheus.CounterVec
	ExternalDurationSeconds *prometheus.HistogramVec

	// Push channel metrics
	PushMessagesTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec

	// Session metrics
	ActiveFlowGauge prometheus.Gauge
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		WebhookRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "carelink_webhook_requests_total",
				Help: "Total number of webhook requests by event type and status",
			},
			[]string{"event_type", "status"}, // status: success, error, reply_error
		),

		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carelink_webhook_duration_seconds",
				Help:    "Webhook event processing duration in seconds by event type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"event_type"}, // event_type: message, postback, follow
		),

		DispatchTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "carelink_dispatch_total",
				Help: "Total dispatched inputs by branch and result",
			},
			[]string{"branch", "result"}, // branch: flow, keyword, postback; result: handled, fallback, error
		),

		FlowOutcomeTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "carelink_flow_outcome_total",
				Help: "Total step outcomes by flow and outcome",
			},
			[]string{"flow", "outcome"}, // outcome: advance, reject, complete, cancel, expire
		),

		ExternalRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "carelink_external_requests_total",
				Help: "Total external API requests by service and status",
			},
			[]string{"service", "status"}, // service: gemini, openai, openweather, places
		),

		ExternalDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carelink_external_duration_seconds",
				Help:    "External API request duration in seconds by service",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"service"},
		),

		PushMessagesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "carelink_push_messages_total",
				Help: "Total push messages by kind and status",
			},
			[]string{"kind", "status"}, // kind: tour_result, reminder, failure_notice
		),

		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "carelink_rate_limiter_dropped_total",
				Help: "Total requests dropped by rate limiters",
			},
			[]string{"limiter"}, // limiter: user, global, tour
		),

		ActiveFlowGauge: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "carelink_active_flows",
				Help: "Number of conversation sessions with an active flow",
			},
		),
	}
}

// RecordWebhook records a webhook event with its processing duration.
func (m *Metrics) RecordWebhook(eventType, status string, durationSeconds float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	if durationSeconds > 0 {
		m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(durationSeconds)
	}
}

// RecordDispatch records a dispatch decision.
func (m *Metrics) RecordDispatch(branch, result string) {
	m.DispatchTotal.WithLabelValues(branch, result).Inc()
}

// RecordFlowOutcome records a step handler outcome.
func (m *Metrics) RecordFlowOutcome(flow, outcome string) {
	m.FlowOutcomeTotal.WithLabelValues(flow, outcome).Inc()
}

// RecordExternal records an external API call.
func (m *Metrics) RecordExternal(service, status string, durationSeconds float64) {
	m.ExternalRequestsTotal.WithLabelValues(service, status).Inc()
	if durationSeconds > 0 {
		m.ExternalDurationSeconds.WithLabelValues(service).Observe(durationSeconds)
	}
}

// RecordPush records an outbound push message.
func (m *Metrics) RecordPush(kind, status string) {
	m.PushMessagesTotal.WithLabelValues(kind, status).Inc()
}

// RecordRateLimiterDrop records a request dropped by a rate limiter.
func (m *Metrics) RecordRateLimiterDrop(limiter string) {
	m.RateLimiterDropped.WithLabelValues(limiter).Inc()
}
