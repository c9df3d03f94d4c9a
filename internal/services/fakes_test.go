package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/cache"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/db"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
)

type fakePredictor struct {
	calls int
	err   error
	last  clinical.NormalizedRequest
}

func (f *fakePredictor) Predict(ctx context.Context, req clinical.NormalizedRequest) (prediction.Prediction, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return prediction.Prediction{}, f.err
	}
	id := uuid.NewString()
	return prediction.Prediction{
		ID:            id,
		RequestID:     id,
		Cluster:       clinical.ClusterSIDD,
		Probabilities: clinical.Probabilities{0.05, 0.7, 0.1, 0.1, 0.05},
	}, nil
}

type fakeStore struct {
	mu          sync.Mutex
	predictions map[string]*db.Prediction
	followUps   []*db.FollowUp
	clinicians  map[string]*db.Clinician
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		predictions: make(map[string]*db.Prediction),
		clinicians:  make(map[string]*db.Clinician),
	}
}

func (s *fakeStore) GetOrCreateClinician(ctx context.Context, auth0Sub string) (*db.Clinician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clinicians[auth0Sub]
	if !ok {
		c = &db.Clinician{ID: uuid.New(), Auth0Sub: auth0Sub, CreatedAt: time.Now()}
		s.clinicians[auth0Sub] = c
	}
	c.LastSeen = time.Now()
	return c, nil
}

func (s *fakeStore) ListClinicianPredictions(ctx context.Context, clinicianID uuid.UUID, limit, offset int) ([]*db.Prediction, error) {
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

func (s *fakeStore) CreatePrediction(ctx context.Context, p *db.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt = time.Now()
	s.predictions[p.ID] = p
	return nil
}

func (s *fakeStore) GetPrediction(ctx context.Context, id string) (*db.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) CreateFollowUp(ctx context.Context, predictionID string, meds clinical.MedicationSelection) (*db.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &db.FollowUp{
		ID:           uuid.New(),
		PredictionID: predictionID,
		Medications:  meds,
		Status:       db.FollowUpPending,
		CreatedAt:    time.Now(),
	}
	s.followUps = append(s.followUps, f)
	return f, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	queued  []cache.FollowUpEvent
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) GetPrediction(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return data, nil
}

func (c *fakeCache) SetPrediction(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *fakeCache) EnqueueFollowUp(ctx context.Context, ev cache.FollowUpEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = append(c.queued, ev)
	return nil
}
