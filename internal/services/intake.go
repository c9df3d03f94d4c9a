// Package services holds the intake workflow: validate a submitted form,
// obtain a prediction, record it and accept follow-up medications.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/cache"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/db"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/metrics"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/validator"
)

var (
	// ErrPredictionNotFound is returned for unknown prediction IDs and for
	// predictions submitted by another clinician.
	ErrPredictionNotFound = errors.New("prediction not found")
	// ErrIdempotencyConflict is returned when an idempotency key is reused
	// with different form values.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different form")
)

// Predictor obtains a prediction for a normalized request.
type Predictor interface {
	Predict(ctx context.Context, req clinical.NormalizedRequest) (prediction.Prediction, error)
}

// Store persists predictions and follow-up submissions.
type Store interface {
	CreatePrediction(ctx context.Context, p *db.Prediction) error
	GetPrediction(ctx context.Context, id string) (*db.Prediction, error)
	CreateFollowUp(ctx context.Context, predictionID string, meds clinical.MedicationSelection) (*db.FollowUp, error)
	ListClinicianPredictions(ctx context.Context, clinicianID uuid.UUID, limit, offset int) ([]*db.Prediction, error)
	GetOrCreateClinician(ctx context.Context, auth0Sub string) (*db.Clinician, error)
}

// Cache replays retried submissions and queues follow-up deliveries.
type Cache interface {
	GetPrediction(ctx context.Context, key string) ([]byte, error)
	SetPrediction(ctx context.Context, key string, data []byte) error
	EnqueueFollowUp(ctx context.Context, ev cache.FollowUpEvent) error
}

// Submission is one completed intake form.
type Submission struct {
	Raw         clinical.RawInput
	Medications clinical.MedicationSelection
	Consent     bool
	// SubmittedBy is the clinician's ID when the request was authenticated.
	SubmittedBy *uuid.UUID
	// IdempotencyKey marks retries of one submission. Without it every
	// submission gets its own prediction.
	IdempotencyKey string
}

// Result is the outcome of a successful submission.
type Result struct {
	Prediction *db.Prediction
	// Cached is set when a retry with the same idempotency key was replayed.
	Cached bool
}

// IntakeService runs the intake workflow.
type IntakeService struct {
	validator *validator.Validator
	predictor Predictor
	store     Store
	cache     Cache
	metrics   *metrics.Metrics
}

// NewIntakeService creates the service. cache and m may be nil.
func NewIntakeService(v *validator.Validator, predictor Predictor, store Store, cache Cache, m *metrics.Metrics) *IntakeService {
	return &IntakeService{
		validator: v,
		predictor: predictor,
		store:     store,
		cache:     cache,
		metrics:   m,
	}
}

// Validate validates and normalizes a submission without calling the
// prediction service.
func (s *IntakeService) Validate(sub Submission) (clinical.NormalizedRequest, error) {
	req, err := s.validator.Validate(sub.Raw, sub.Medications, sub.Consent)
	s.recordValidation(err)
	return req, err
}

// Submit validates the submission, obtains a prediction and stores it.
// Validation failures are returned as *validator.Error; prediction service
// failures as *prediction.ServiceError.
//
// Two patients can share every form value, so submissions are only replayed
// when the client sends the same idempotency key.
func (s *IntakeService) Submit(ctx context.Context, sub Submission) (*Result, error) {
	req, err := s.Validate(sub)
	if err != nil {
		return nil, err
	}

	key := idempotencyCacheKey(sub.IdempotencyKey, sub.SubmittedBy)
	if cached, ok := s.lookupCached(ctx, key); ok {
		if cached.Request.Fingerprint() != req.Fingerprint() {
			return nil, ErrIdempotencyConflict
		}
		return &Result{Prediction: cached, Cached: true}, nil
	}

	pred, err := s.predictor.Predict(ctx, req)
	if err != nil {
		return nil, err
	}

	record := &db.Prediction{
		ID:            pred.ID,
		RequestID:     pred.RequestID,
		SubmittedBy:   sub.SubmittedBy,
		Request:       req,
		Cluster:       pred.Cluster,
		Probabilities: pred.Probabilities,
	}
	if err := s.store.CreatePrediction(ctx, record); err != nil {
		return nil, fmt.Errorf("store prediction: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ClusterTotal.WithLabelValues(string(record.Cluster)).Inc()
	}
	s.storeCached(ctx, key, record)

	return &Result{Prediction: record}, nil
}

// GetPrediction returns a stored prediction visible to caller. A
// prediction submitted by another clinician is reported as not found;
// anonymous predictions are only visible to anonymous callers.
func (s *IntakeService) GetPrediction(ctx context.Context, id string, caller *uuid.UUID) (*db.Prediction, error) {
	p, err := s.store.GetPrediction(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrPredictionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !sameClinician(p.SubmittedBy, caller) {
		return nil, ErrPredictionNotFound
	}
	return p, nil
}

// ResolveClinician maps an Auth0 subject to a clinician ID. An empty
// subject resolves to nil.
func (s *IntakeService) ResolveClinician(ctx context.Context, auth0Sub string) (*uuid.UUID, error) {
	if auth0Sub == "" {
		return nil, nil
	}
	c, err := s.store.GetOrCreateClinician(ctx, auth0Sub)
	if err != nil {
		return nil, err
	}
	return &c.ID, nil
}

// ListPredictions returns a clinician's predictions, newest first.
func (s *IntakeService) ListPredictions(ctx context.Context, clinicianID uuid.UUID, limit, offset int) ([]*db.Prediction, error) {
	return s.store.ListClinicianPredictions(ctx, clinicianID, limit, offset)
}

// SubmitFollowUp records medications chosen after a prediction and queues
// their delivery to the prediction service. The prediction must exist and
// be visible to caller.
func (s *IntakeService) SubmitFollowUp(ctx context.Context, predictionID string, caller *uuid.UUID, meds clinical.MedicationSelection) (*db.FollowUp, error) {
	if err := validator.ValidateMedications(meds); err != nil {
		s.recordValidation(err)
		return nil, err
	}

	if _, err := s.GetPrediction(ctx, predictionID, caller); err != nil {
		return nil, err
	}

	f, err := s.store.CreateFollowUp(ctx, predictionID, meds)
	if err != nil {
		return nil, fmt.Errorf("store follow-up: %w", err)
	}

	if s.cache != nil {
		ev := cache.FollowUpEvent{FollowUpID: f.ID.String(), PredictionID: predictionID, Attempt: 0}
		if err := s.cache.EnqueueFollowUp(ctx, ev); err != nil {
			return nil, fmt.Errorf("queue follow-up: %w", err)
		}
	}
	if s.metrics != nil {
		s.metrics.FollowUpTotal.WithLabelValues("queued").Inc()
	}
	return f, nil
}

func (s *IntakeService) recordValidation(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "normalized"
	var verr *validator.Error
	if errors.As(err, &verr) {
		outcome = verr.Kind.String()
	} else if err != nil {
		outcome = "error"
	}
	s.metrics.ValidationTotal.WithLabelValues(outcome).Inc()
}

func (s *IntakeService) lookupCached(ctx context.Context, key string) (*db.Prediction, bool) {
	if s.cache == nil || key == "" {
		return nil, false
	}
	data, err := s.cache.GetPrediction(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("[intake] cache lookup failed: %v", err)
		}
		return nil, false
	}
	var p db.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("[intake] discarding unreadable cached prediction: %v", err)
		return nil, false
	}
	return &p, true
}

func (s *IntakeService) storeCached(ctx context.Context, key string, p *db.Prediction) {
	if s.cache == nil || key == "" {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		log.Printf("[intake] failed to encode prediction for cache: %v", err)
		return
	}
	if err := s.cache.SetPrediction(ctx, key, data); err != nil {
		log.Printf("[intake] cache store failed: %v", err)
	}
}

// idempotencyCacheKey scopes a client key to the submitting clinician. An
// empty key disables replay.
func idempotencyCacheKey(key string, submittedBy *uuid.UUID) string {
	if key == "" {
		return ""
	}
	owner := "anonymous"
	if submittedBy != nil {
		owner = submittedBy.String()
	}
	return owner + "|" + key
}

func sameClinician(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
