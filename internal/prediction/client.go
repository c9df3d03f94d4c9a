// Package prediction calls the remote diabetes subtype prediction service.
//
// Both operations go through a per-operation circuit breaker and a bounded
// retry loop. Only transport failures and 5xx responses are retried; a 400
// from the service is the service's own validation and is final.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/circuitbreaker"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/metrics"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Prediction is a decoded submit-for-prediction response.
type Prediction struct {
	// ID identifies the prediction for follow-up submissions. It is the
	// service-assigned prediction_id, or the request_id when none is returned.
	ID            string                 `json:"prediction_id"`
	RequestID     string                 `json:"request_id"`
	Cluster       clinical.Cluster       `json:"cluster_label"`
	Probabilities clinical.Probabilities `json:"probabilities"`
}

// Options configures a Client.
type Options struct {
	PredictURL       string
	MedicationsURL   string
	Timeout          time.Duration
	ConnectTimeout   time.Duration
	RetryEnabled     bool
	RetryMaxAttempts int
	RetryWait        time.Duration

	// Breakers defaults to a registry with a 5/2/30s policy.
	Breakers *circuitbreaker.Registry
	// Metrics is optional.
	Metrics *metrics.Metrics
	// HTTPClient overrides the tuned default client.
	HTTPClient *http.Client
}

// Client talks to the prediction service.
type Client struct {
	opts     Options
	http     *http.Client
	breakers *circuitbreaker.Registry
	metrics  *metrics.Metrics
}

// New creates a client.
func New(opts Options) *Client {
	if opts.RetryMaxAttempts < 1 {
		opts.RetryMaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Timeout, opts.ConnectTimeout)
	}
	breakers := opts.Breakers
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(circuitbreaker.Settings{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			RecoveryTimeout:  30 * time.Second,
		})
	}

	return &Client{
		opts:     opts,
		http:     httpClient,
		breakers: breakers,
		metrics:  opts.Metrics,
	}
}

// NewFromConfig creates a client from service configuration, publishing
// breaker state through m when it is non-nil.
func NewFromConfig(cfg *config.Config, m *metrics.Metrics) *Client {
	settings := circuitbreaker.Settings{
		FailureThreshold: cfg.CBFailureThreshold,
		SuccessThreshold: cfg.CBSuccessThreshold,
		RecoveryTimeout:  cfg.CBRecoveryTimeout,
	}
	if m != nil {
		settings.StateGauge = m.CircuitBreakerState
	}

	return New(Options{
		PredictURL:       cfg.PredictURL(),
		MedicationsURL:   cfg.MedicationsURL(),
		Timeout:          cfg.PredictionTimeout,
		ConnectTimeout:   cfg.ConnectTimeout,
		RetryEnabled:     cfg.RetryEnabled,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryWait:        time.Duration(cfg.RetryWaitMs) * time.Millisecond,
		Breakers:         circuitbreaker.NewRegistry(settings),
		Metrics:          m,
	})
}

// Breakers exposes the breaker registry for readiness reporting.
func (c *Client) Breakers() *circuitbreaker.Registry {
	return c.breakers
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

type predictRequest struct {
	clinical.NormalizedRequest
	RequestID string `json:"request_id"`
}

type predictResponse struct {
	ClusterLabel  string    `json:"cluster_label"`
	Probabilities []float64 `json:"probabilities"`
	PredictionID  string    `json:"prediction_id"`
}

type followUpRequest struct {
	PredictionID string                       `json:"prediction_id"`
	Medications  clinical.MedicationSelection `json:"medications"`
}

// Predict submits a normalized request for prediction.
func (c *Client) Predict(ctx context.Context, req clinical.NormalizedRequest) (Prediction, error) {
	requestID := uuid.New().String()
	payload := predictRequest{NormalizedRequest: req, RequestID: requestID}

	var out predictResponse
	if err := c.call(ctx, metrics.OpPredict, c.opts.PredictURL, payload, &out); err != nil {
		return Prediction{}, err
	}

	cluster, err := clinical.ParseCluster(out.ClusterLabel)
	if err != nil {
		return Prediction{}, c.malformed(metrics.OpPredict, err)
	}
	probs, err := clinical.ProbabilitiesFromSlice(out.Probabilities)
	if err != nil {
		return Prediction{}, c.malformed(metrics.OpPredict, err)
	}

	id := out.PredictionID
	if id == "" {
		id = requestID
	}
	return Prediction{
		ID:            id,
		RequestID:     requestID,
		Cluster:       cluster,
		Probabilities: probs,
	}, nil
}

// SubmitFollowUpMedications sends medications chosen after a prediction.
// The prediction identifier is mandatory.
func (c *Client) SubmitFollowUpMedications(ctx context.Context, predictionID string, meds clinical.MedicationSelection) error {
	if predictionID == "" {
		return &ServiceError{Op: metrics.OpMedications, Err: ErrRejected, Message: "prediction_id required"}
	}
	payload := followUpRequest{PredictionID: predictionID, Medications: meds}
	return c.call(ctx, metrics.OpMedications, c.opts.MedicationsURL, payload, nil)
}

// call runs one operation with circuit breaker and retry protection.
func (c *Client) call(ctx context.Context, op, url string, payload, out any) error {
	cb := c.breakers.Get(op)
	if !cb.Allow() {
		c.countError(op, "circuit_open")
		return &ServiceError{Op: op, Err: ErrCircuitOpen}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.RetryMaxAttempts; attempt++ {
		if attempt > 1 {
			if c.metrics != nil {
				c.metrics.PredictionRetries.WithLabelValues(op, strconv.Itoa(attempt)).Inc()
			}
			log.Printf("[prediction] %s retry attempt %d", op, attempt)

			select {
			case <-ctx.Done():
				cb.RecordFailure()
				return &ServiceError{Op: op, Err: ErrUnavailable, Message: ctx.Err().Error()}
			case <-time.After(c.opts.RetryWait):
			}
		}

		lastErr = c.do(ctx, op, url, body, out)
		if lastErr == nil || !retryable(lastErr) {
			break
		}
		if !c.opts.RetryEnabled {
			break
		}
	}

	switch {
	case lastErr == nil:
		cb.RecordSuccess()
	case retryable(lastErr):
		cb.RecordFailure()
		c.countError(op, "unavailable")
	case isRejected(lastErr):
		// The service answered; it is healthy.
		cb.RecordSuccess()
		c.countError(op, "rejected")
	default:
		cb.RecordFailure()
		c.countError(op, "malformed")
	}
	return lastErr
}

// do performs a single HTTP exchange.
func (c *Client) do(ctx context.Context, op, url string, body []byte, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ServiceError{Op: op, Err: ErrUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.PredictionLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: ErrUnavailable, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: ErrUnavailable, Message: errorMessage(respBody)}
	case resp.StatusCode >= 400:
		return &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: ErrRejected, Message: errorMessage(respBody)}
	default:
		return &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: ErrMalformedResponse}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: ErrMalformedResponse, Message: err.Error()}
	}
	return nil
}

func (c *Client) malformed(op string, err error) error {
	c.countError(op, "malformed")
	c.breakers.Get(op).RecordFailure()
	return &ServiceError{Op: op, StatusCode: http.StatusOK, Err: ErrMalformedResponse, Message: err.Error()}
}

func (c *Client) countError(op, reason string) {
	if c.metrics != nil {
		c.metrics.PredictionErrors.WithLabelValues(op, reason).Inc()
	}
}

// errorMessage extracts {"error": "..."} from a service error body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(bytes.TrimSpace(body))
}
