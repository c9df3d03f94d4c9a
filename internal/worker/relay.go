// Package worker relays queued follow-up medication submissions to the
// prediction service.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/cache"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/db"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/metrics"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
)

// Queue is the follow-up delivery stream.
type Queue interface {
	ReadFollowUps(ctx context.Context, count int, block time.Duration) ([]cache.FollowUpEvent, error)
	EnqueueFollowUp(ctx context.Context, ev cache.FollowUpEvent) error
}

// Store tracks delivery state.
type Store interface {
	GetFollowUp(ctx context.Context, id uuid.UUID) (*db.FollowUp, error)
	ListPendingFollowUps(ctx context.Context, cutoff time.Time, limit int) ([]*db.FollowUp, error)
	MarkFollowUpDelivered(ctx context.Context, id uuid.UUID) error
	RecordFollowUpAttempt(ctx context.Context, id uuid.UUID, lastErr string, final bool) (int, error)
}

// Sender delivers medications to the prediction service.
type Sender interface {
	SubmitFollowUpMedications(ctx context.Context, predictionID string, meds clinical.MedicationSelection) error
}

// Relay drains the follow-up stream on a fixed interval.
type Relay struct {
	queue   Queue
	store   Store
	sender  Sender
	metrics *metrics.Metrics

	batchSize     int
	flushInterval time.Duration
	maxAttempts   int
	sweepLimit    int
}

// NewRelay creates a relay. m may be nil.
func NewRelay(queue Queue, store Store, sender Sender, m *metrics.Metrics, cfg *config.Config) *Relay {
	return &Relay{
		queue:         queue,
		store:         store,
		sender:        sender,
		metrics:       m,
		batchSize:     cfg.WorkerBatchSize,
		flushInterval: cfg.WorkerFlushInterval,
		maxAttempts:   cfg.FollowUpMaxAttempts,
		sweepLimit:    cfg.FollowUpSweepLimit,
	}
}

// Start re-queues follow-ups left pending by an earlier run, then flushes
// on every tick until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	log.Printf("[relay] started, batch=%d interval=%s max_attempts=%d", r.batchSize, r.flushInterval, r.maxAttempts)

	r.Sweep(ctx, time.Now())

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[relay] shutting down")
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush processes one batch and returns the number of events handled.
func (r *Relay) Flush(ctx context.Context) int {
	events, err := r.queue.ReadFollowUps(ctx, r.batchSize, -1)
	if err != nil {
		log.Printf("[relay] error reading follow-ups: %v", err)
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	for _, ev := range events {
		if err := r.deliver(ctx, ev); err != nil {
			log.Printf("[relay] follow-up %s: %v", ev.FollowUpID, err)
		}
	}
	log.Printf("[relay] processed %d follow-ups", len(events))
	return len(events)
}

// Sweep re-queues pending follow-ups created before cutoff. Stream entries
// are deleted when read, so a crash between read and delivery leaves a
// pending row with nothing queued.
func (r *Relay) Sweep(ctx context.Context, cutoff time.Time) int {
	pending, err := r.store.ListPendingFollowUps(ctx, cutoff, r.sweepLimit)
	if err != nil {
		log.Printf("[relay] error listing pending follow-ups: %v", err)
		return 0
	}

	requeued := 0
	for _, f := range pending {
		ev := cache.FollowUpEvent{FollowUpID: f.ID.String(), PredictionID: f.PredictionID, Attempt: f.Attempts}
		if err := r.queue.EnqueueFollowUp(ctx, ev); err != nil {
			log.Printf("[relay] follow-up %s: requeue failed: %v", ev.FollowUpID, err)
			continue
		}
		r.count("requeued")
		requeued++
	}
	if requeued > 0 {
		log.Printf("[relay] requeued %d pending follow-ups", requeued)
	}
	return requeued
}

func (r *Relay) deliver(ctx context.Context, ev cache.FollowUpEvent) error {
	id, err := uuid.Parse(ev.FollowUpID)
	if err != nil {
		return err
	}

	f, err := r.store.GetFollowUp(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		r.count("dropped")
		return nil
	}
	if err != nil {
		// The entry is already off the stream; put it back.
		return r.queue.EnqueueFollowUp(ctx, ev)
	}
	if f.Status != db.FollowUpPending {
		return nil
	}

	sendErr := r.sender.SubmitFollowUpMedications(ctx, f.PredictionID, f.Medications)
	if sendErr == nil {
		r.count(db.FollowUpDelivered)
		return r.store.MarkFollowUpDelivered(ctx, id)
	}

	// Rejections will not succeed on re-delivery.
	final := errors.Is(sendErr, prediction.ErrRejected) || f.Attempts+1 >= r.maxAttempts
	if _, err := r.store.RecordFollowUpAttempt(ctx, id, sendErr.Error(), final); err != nil {
		return err
	}
	if final {
		r.count(db.FollowUpFailed)
		return sendErr
	}

	r.count("retried")
	ev.Attempt = f.Attempts + 1
	return r.queue.EnqueueFollowUp(ctx, ev)
}

func (r *Relay) count(status string) {
	if r.metrics != nil {
		r.metrics.FollowUpTotal.WithLabelValues(status).Inc()
	}
}
