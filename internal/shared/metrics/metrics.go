package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Payment metrics
	PaymentOperationsTotal *prometheus.CounterVec
	PaymentTransitions     *prometheus.CounterVec
	RefundsTotal           *prometheus.CounterVec
	RefundedAmountTotal    *prometheus.CounterVec
	SessionTransitions     *prometheus.CounterVec
	SessionsExpiredTotal   prometheus.Counter

	// Webhook metrics
	WebhooksTotal *prometheus.CounterVec

	// Gateway metrics
	GatewayRequestDuration *prometheus.HistogramVec
	GatewayBreakerState    *prometheus.GaugeVec
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default Prometheus registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "checkout"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Payment metrics
		PaymentOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "operations_total",
				Help:      "Total number of capture, refund and void operations",
			},
			[]string{"operation", "result"},
		),
		PaymentTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "status_transitions_total",
				Help:      "Total number of payment status changes",
			},
			[]string{"from", "to", "source"}, // source: operation, webhook, direct
		),
		RefundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "refunds_total",
				Help:      "Total number of refunds recorded",
			},
			[]string{"status", "source"},
		),
		RefundedAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "refunded_amount_minor_total",
				Help:      "Approved refund amount in minor currency units",
			},
			[]string{"currency"},
		),
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "session_transitions_total",
				Help:      "Total number of payment session status changes",
			},
			[]string{"from", "to"},
		),
		SessionsExpiredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "sessions_expired_total",
				Help:      "Total number of expired pending sessions removed",
			},
		),

		// Webhook metrics
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Total number of inbound webhook deliveries",
			},
			[]string{"event_type", "outcome"}, // outcome: processed, duplicate, rejected, ignored, failed
		),

		// Gateway metrics
		GatewayRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Payment gateway request duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"gateway", "operation", "status"},
		),
		GatewayBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"gateway"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records the result of a payment operation.
func (m *Metrics) RecordOperation(operation, result string) {
	m.PaymentOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordTransition records a payment status change.
func (m *Metrics) RecordTransition(from, to, source string) {
	m.PaymentTransitions.WithLabelValues(from, to, source).Inc()
}

// RecordRefund records a stored refund. Only approved refunds add to the
// refunded amount.
func (m *Metrics) RecordRefund(status, source, currency string, amount int64) {
	m.RefundsTotal.WithLabelValues(status, source).Inc()
	if status == "Approved" && amount > 0 {
		m.RefundedAmountTotal.WithLabelValues(currency).Add(float64(amount))
	}
}

// RecordSessionTransition records a session status change.
func (m *Metrics) RecordSessionTransition(from, to string) {
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordExpiredSessions records swept sessions.
func (m *Metrics) RecordExpiredSessions(n int64) {
	if n > 0 {
		m.SessionsExpiredTotal.Add(float64(n))
	}
}

// RecordWebhook records a webhook delivery outcome.
func (m *Metrics) RecordWebhook(eventType, outcome string) {
	m.WebhooksTotal.WithLabelValues(eventType, outcome).Inc()
}

// ObserveCall records a gateway call.
func (m *Metrics) ObserveCall(gateway, op, status string, d time.Duration) {
	m.GatewayRequestDuration.WithLabelValues(gateway, op, status).Observe(d.Seconds())
}

// BreakerStateChanged records the gateway circuit breaker state.
func (m *Metrics) BreakerStateChanged(gateway string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.GatewayBreakerState.WithLabelValues(gateway).Set(v)
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
