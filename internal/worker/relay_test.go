package worker

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/cache"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/db"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/metrics"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
)

type memQueue struct {
	mu     sync.Mutex
	events []cache.FollowUpEvent
}

func (q *memQueue) ReadFollowUps(ctx context.Context, count int, block time.Duration) ([]cache.FollowUpEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if count > len(q.events) {
		count = len(q.events)
	}
	out := q.events[:count]
	q.events = append([]cache.FollowUpEvent(nil), q.events[count:]...)
	return out, nil
}

func (q *memQueue) EnqueueFollowUp(ctx context.Context, ev cache.FollowUpEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
	return nil
}

type memStore struct {
	followUps map[uuid.UUID]*db.FollowUp
}

func (s *memStore) GetFollowUp(ctx context.Context, id uuid.UUID) (*db.FollowUp, error) {
	f, ok := s.followUps[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) ListPendingFollowUps(ctx context.Context, cutoff time.Time, limit int) ([]*db.FollowUp, error) {
	out := make([]*db.FollowUp, 0)
	for _, f := range s.followUps {
		if f.Status == db.FollowUpPending && f.CreatedAt.Before(cutoff) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkFollowUpDelivered(ctx context.Context, id uuid.UUID) error {
	f := s.followUps[id]
	f.Status = db.FollowUpDelivered
	f.Attempts++
	return nil
}

func (s *memStore) RecordFollowUpAttempt(ctx context.Context, id uuid.UUID, lastErr string, final bool) (int, error) {
	f := s.followUps[id]
	f.Attempts++
	f.LastError = &lastErr
	if final {
		f.Status = db.FollowUpFailed
	}
	return f.Attempts, nil
}

type scriptedSender struct {
	mu    sync.Mutex
	errs  []error
	calls int
	ids   []string
}

func (s *scriptedSender) SubmitFollowUpMedications(ctx context.Context, predictionID string, meds clinical.MedicationSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, predictionID)
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

type relayEnv struct {
	relay   *Relay
	queue   *memQueue
	store   *memStore
	sender  *scriptedSender
	metrics *metrics.Metrics
}

func newRelayEnv(errs ...error) *relayEnv {
	env := &relayEnv{
		queue:   &memQueue{},
		store:   &memStore{followUps: make(map[uuid.UUID]*db.FollowUp)},
		sender:  &scriptedSender{errs: errs},
		metrics: metrics.New("test", prometheus.NewRegistry()),
	}
	cfg := &config.Config{WorkerBatchSize: 10, WorkerFlushInterval: time.Millisecond, FollowUpMaxAttempts: 3, FollowUpSweepLimit: 100}
	env.relay = NewRelay(env.queue, env.store, env.sender, env.metrics, cfg)
	return env
}

func (e *relayEnv) add() uuid.UUID {
	id := e.addUnqueued(time.Now().Add(-time.Minute))
	e.queue.EnqueueFollowUp(context.Background(), cache.FollowUpEvent{FollowUpID: id.String(), PredictionID: e.store.followUps[id].PredictionID})
	return id
}

// addUnqueued stores a pending follow-up whose stream entry was lost.
func (e *relayEnv) addUnqueued(createdAt time.Time) uuid.UUID {
	id := uuid.New()
	e.store.followUps[id] = &db.FollowUp{
		ID:           id,
		PredictionID: "p-" + id.String()[:8],
		Medications:  clinical.NewMedicationSelection(clinical.Insulin),
		Status:       db.FollowUpPending,
		CreatedAt:    createdAt,
	}
	return id
}

var errUnavailable = &prediction.ServiceError{Op: metrics.OpMedications, Err: prediction.ErrUnavailable}

func TestRelayDelivers(t *testing.T) {
	env := newRelayEnv()
	id := env.add()

	if n := env.relay.Flush(context.Background()); n != 1 {
		t.Fatalf("Flush() = %d, want 1", n)
	}
	f := env.store.followUps[id]
	if f.Status != db.FollowUpDelivered {
		t.Errorf("Status = %q", f.Status)
	}
	if env.sender.ids[0] != f.PredictionID {
		t.Errorf("sent prediction_id %q, want %q", env.sender.ids[0], f.PredictionID)
	}
	if got := testutil.ToFloat64(env.metrics.FollowUpTotal.WithLabelValues("delivered")); got != 1 {
		t.Errorf("delivered counter = %v", got)
	}
}

func TestRelayRetriesThenFails(t *testing.T) {
	env := newRelayEnv(errUnavailable, errUnavailable, errUnavailable, errUnavailable)
	id := env.add()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env.relay.Flush(ctx)
	}
	f := env.store.followUps[id]
	if f.Status != db.FollowUpFailed || f.Attempts != 3 {
		t.Errorf("follow-up = %+v, want failed after 3 attempts", f)
	}
	if env.sender.calls != 3 {
		t.Errorf("sender calls = %d, want 3", env.sender.calls)
	}
	if len(env.queue.events) != 0 {
		t.Errorf("queue still holds %d events", len(env.queue.events))
	}
}

func TestRelayRecoversAfterTransientFailure(t *testing.T) {
	env := newRelayEnv(errUnavailable)
	id := env.add()
	ctx := context.Background()

	env.relay.Flush(ctx)
	if env.queue.events[0].Attempt != 1 {
		t.Errorf("requeued attempt = %d, want 1", env.queue.events[0].Attempt)
	}
	env.relay.Flush(ctx)

	f := env.store.followUps[id]
	if f.Status != db.FollowUpDelivered || f.Attempts != 2 {
		t.Errorf("follow-up = %+v", f)
	}
}

func TestRelayRejectionIsFinal(t *testing.T) {
	rejected := &prediction.ServiceError{Op: metrics.OpMedications, StatusCode: 400, Err: prediction.ErrRejected}
	env := newRelayEnv(rejected)
	id := env.add()

	env.relay.Flush(context.Background())
	if f := env.store.followUps[id]; f.Status != db.FollowUpFailed {
		t.Errorf("Status = %q, want failed", f.Status)
	}
	if len(env.queue.events) != 0 {
		t.Error("rejected follow-up requeued")
	}
}

func TestRelaySkipsUnknownAndDelivered(t *testing.T) {
	env := newRelayEnv()
	ctx := context.Background()

	env.queue.EnqueueFollowUp(ctx, cache.FollowUpEvent{FollowUpID: uuid.NewString(), PredictionID: "gone"})
	id := env.add()
	env.store.followUps[id].Status = db.FollowUpDelivered

	env.relay.Flush(ctx)
	if env.sender.calls != 0 {
		t.Errorf("sender calls = %d, want 0", env.sender.calls)
	}
}

func TestRelaySweepRequeuesLostFollowUps(t *testing.T) {
	env := newRelayEnv()
	ctx := context.Background()
	cutoff := time.Now()

	lost := env.addUnqueued(cutoff.Add(-time.Hour))
	env.store.followUps[lost].Attempts = 1
	delivered := env.addUnqueued(cutoff.Add(-time.Hour))
	env.store.followUps[delivered].Status = db.FollowUpDelivered
	env.addUnqueued(cutoff.Add(time.Second))

	if n := env.relay.Sweep(ctx, cutoff); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if ev := env.queue.events[0]; ev.FollowUpID != lost.String() || ev.Attempt != 1 {
		t.Errorf("requeued %+v", ev)
	}
	if got := testutil.ToFloat64(env.metrics.FollowUpTotal.WithLabelValues("requeued")); got != 1 {
		t.Errorf("requeued counter = %v", got)
	}

	env.relay.Flush(ctx)
	if f := env.store.followUps[lost]; f.Status != db.FollowUpDelivered {
		t.Errorf("lost follow-up status = %q, want delivered", f.Status)
	}
	if env.sender.calls != 1 {
		t.Errorf("sender calls = %d, want 1", env.sender.calls)
	}
}

func TestRelayStartSweepsBeforeFlushing(t *testing.T) {
	env := newRelayEnv()
	id := env.addUnqueued(time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.relay.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		env.sender.mu.Lock()
		calls := env.sender.calls
		env.sender.mu.Unlock()
		if calls == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("relay never delivered the swept follow-up")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	if f := env.store.followUps[id]; f.Status != db.FollowUpDelivered {
		t.Errorf("Status = %q, want delivered", f.Status)
	}
}

func TestRelayStartStops(t *testing.T) {
	env := newRelayEnv()
	env.add()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.relay.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		env.queue.mu.Lock()
		empty := len(env.queue.events) == 0
		env.queue.mu.Unlock()
		if empty {
			break
		}
		select {
		case <-deadline:
			t.Fatal("relay never drained the queue")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
