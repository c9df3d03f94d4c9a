package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/google/uuid"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/cache"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/db"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
)

type stubPredictor struct {
	err error
}

func (p *stubPredictor) Predict(ctx context.Context, req clinical.NormalizedRequest) (prediction.Prediction, error) {
	if p.err != nil {
		return prediction.Prediction{}, p.err
	}
	id := uuid.NewString()
	return prediction.Prediction{
		ID:            id,
		RequestID:     id,
		Cluster:       clinical.ClusterSIRD,
		Probabilities: clinical.Probabilities{0.01, 0.02, 0.93456, 0.03, 0.00544},
	}, nil
}

type memStore struct {
	mu          sync.Mutex
	predictions map[string]*db.Prediction
	clinicians  map[string]*db.Clinician
}

func newMemStore() *memStore {
	return &memStore{
		predictions: make(map[string]*db.Prediction),
		clinicians:  make(map[string]*db.Clinician),
	}
}

func (s *memStore) CreatePrediction(ctx context.Context, p *db.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt = time.Now().UTC()
	s.predictions[p.ID] = p
	return nil
}

func (s *memStore) GetPrediction(ctx context.Context, id string) (*db.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.predictions[id]; ok {
		return p, nil
	}
	return nil, db.ErrNotFound
}

func (s *memStore) CreateFollowUp(ctx context.Context, predictionID string, meds clinical.MedicationSelection) (*db.FollowUp, error) {
	return &db.FollowUp{
		ID:           uuid.New(),
		PredictionID: predictionID,
		Medications:  meds,
		Status:       db.FollowUpPending,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (s *memStore) ListClinicianPredictions(ctx context.Context, clinicianID uuid.UUID, limit, offset int) ([]*db.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*db.Prediction, 0)
	for _, p := range s.predictions {
		if p.SubmittedBy != nil && *p.SubmittedBy == clinicianID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) GetOrCreateClinician(ctx context.Context, auth0Sub string) (*db.Clinician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clinicians[auth0Sub]
	if !ok {
		c = &db.Clinician{ID: uuid.New(), Auth0Sub: auth0Sub}
		s.clinicians[auth0Sub] = c
	}
	return c, nil
}

// countingLimiter allows the first n calls per key.
type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (l *countingLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) GetPrediction(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return data, nil
}

func (c *memCache) SetPrediction(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *memCache) EnqueueFollowUp(ctx context.Context, ev cache.FollowUpEvent) error {
	return nil
}

// subjectValidator maps bearer tokens to subjects.
type subjectValidator map[string]string

func (v subjectValidator) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	sub, ok := v[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &validator.ValidatedClaims{RegisteredClaims: validator.RegisteredClaims{Subject: sub}}, nil
}

type checker struct{ err error }

func (c checker) HealthCheck(ctx context.Context) error { return c.err }

var errDown = errors.New("connection refused")
