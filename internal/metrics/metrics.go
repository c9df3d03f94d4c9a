// Package metrics provides Prometheus metrics for the subtype intake services.
package metrics

import (
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Pre-defined histogram buckets for latency metrics
var (
	// HTTPLatencyBuckets are latency buckets for the full HTTP request/response cycle
	HTTPLatencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

	// PredictionLatencyBuckets are latency buckets for prediction service calls
	PredictionLatencyBuckets = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}
)

// Operations of the prediction service, used as label values.
const (
	OpPredict     = "predict"
	OpMedications = "medications"
)

// Metrics holds all Prometheus metrics for a service.
type Metrics struct {
	// HTTPRequestDuration tracks full HTTP request duration
	HTTPRequestDuration *prometheus.HistogramVec

	// InFlightRequests tracks currently processing requests
	InFlightRequests *prometheus.GaugeVec

	// ValidationTotal counts validation outcomes by kind ("normalized" on success)
	ValidationTotal *prometheus.CounterVec

	// PredictionLatency tracks prediction service call latency
	PredictionLatency *prometheus.HistogramVec

	// PredictionRetries tracks retry attempts
	PredictionRetries *prometheus.CounterVec

	// PredictionErrors counts failed prediction service calls by reason
	PredictionErrors *prometheus.CounterVec

	// CircuitBreakerState tracks circuit breaker states
	CircuitBreakerState *prometheus.GaugeVec

	// ClusterTotal counts predicted cluster labels
	ClusterTotal *prometheus.CounterVec

	// FollowUpTotal counts follow-up medication deliveries by status
	FollowUpTotal *prometheus.CounterVec

	// ServiceName is the name of this service
	ServiceName string

	hostname string
}

// New creates and registers the metrics on reg.
func New(serviceName string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServiceName: serviceName,
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (full request/response cycle)",
				Buckets: HTTPLatencyBuckets,
			},
			[]string{"method", "route", "status_code"},
		),
		InFlightRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intake_in_flight_requests",
				Help: "Number of in-flight requests",
			},
			[]string{"pod"},
		),
		ValidationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_validation_total",
				Help: "Validation outcomes by failure kind",
			},
			[]string{"outcome"},
		),
		PredictionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_prediction_call_latency_seconds",
				Help:    "Latency of prediction service calls",
				Buckets: PredictionLatencyBuckets,
			},
			[]string{"operation"},
		),
		PredictionRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_prediction_call_retries_total",
				Help: "Total number of retries for prediction service calls",
			},
			[]string{"operation", "retry_number"},
		),
		PredictionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_prediction_call_errors_total",
				Help: "Failed prediction service calls by reason",
			},
			[]string{"operation", "reason"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intake_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"operation"},
		),
		ClusterTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_predicted_cluster_total",
				Help: "Predicted diabetes subtype labels",
			},
			[]string{"cluster"},
		),
		FollowUpTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_followup_medications_total",
				Help: "Follow-up medication submissions by delivery status",
			},
			[]string{"status"},
		),
	}

	// Register metrics
	reg.MustRegister(
		m.HTTPRequestDuration,
		m.InFlightRequests,
		m.ValidationTotal,
		m.PredictionLatency,
		m.PredictionRetries,
		m.PredictionErrors,
		m.CircuitBreakerState,
		m.ClusterTotal,
		m.FollowUpTotal,
	)

	// Get hostname (pod name)
	m.hostname, _ = os.Hostname()

	// Initialize to 0 so it's exposed immediately
	m.InFlightRequests.WithLabelValues(m.hostname).Set(0)

	// Pre-initialize labels for both operations
	for _, op := range []string{OpPredict, OpMedications} {
		m.PredictionLatency.WithLabelValues(op)
		m.CircuitBreakerState.WithLabelValues(op).Set(0) // CLOSED
	}

	return m
}

// Middleware returns fiber middleware that tracks HTTP request metrics.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip metrics collection for /metrics endpoint
		if c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		m.InFlightRequests.WithLabelValues(m.hostname).Inc()
		defer m.InFlightRequests.WithLabelValues(m.hostname).Dec()

		err := c.Next()

		// Label by route pattern, not the raw path, to bound cardinality
		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.HTTPRequestDuration.WithLabelValues(
			c.Method(),
			route,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())

		return err
	}
}
