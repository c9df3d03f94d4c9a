package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
)

// Follow-up delivery statuses.
const (
	FollowUpPending   = "pending"
	FollowUpDelivered = "delivered"
	FollowUpFailed    = "failed"
)

// FollowUp is a medication submission made after a prediction, relayed to
// the prediction service by the worker.
type FollowUp struct {
	ID           uuid.UUID                    `json:"id"`
	PredictionID string                       `json:"prediction_id"`
	Medications  clinical.MedicationSelection `json:"medications"`
	Status       string                       `json:"status"`
	Attempts     int                          `json:"attempts"`
	LastError    *string                      `json:"last_error,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
	DeliveredAt  *time.Time                   `json:"delivered_at,omitempty"`
}

// CreateFollowUp records a pending follow-up submission.
func (db *DB) CreateFollowUp(ctx context.Context, predictionID string, meds clinical.MedicationSelection) (*FollowUp, error) {
	data, err := json.Marshal(meds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode medications: %w", err)
	}

	f := &FollowUp{PredictionID: predictionID, Medications: meds}
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO followup_medications (prediction_id, medications)
		VALUES ($1, $2)
		RETURNING id, status, attempts, created_at
	`, predictionID, data).Scan(&f.ID, &f.Status, &f.Attempts, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create follow-up: %w", err)
	}
	return f, nil
}

const followUpColumns = `id, prediction_id, medications, status, attempts, last_error, created_at, delivered_at`

func scanFollowUp(row pgx.Row) (*FollowUp, error) {
	f := &FollowUp{}
	var meds []byte
	if err := row.Scan(&f.ID, &f.PredictionID, &meds, &f.Status, &f.Attempts, &f.LastError, &f.CreatedAt, &f.DeliveredAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meds, &f.Medications); err != nil {
		return nil, fmt.Errorf("failed to decode medications: %w", err)
	}
	return f, nil
}

// GetFollowUp retrieves a follow-up submission by ID.
func (db *DB) GetFollowUp(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	f, err := scanFollowUp(db.Pool.QueryRow(ctx, `
		SELECT `+followUpColumns+`
		FROM followup_medications
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get follow-up: %w", err)
	}
	return f, nil
}

// ListPendingFollowUps returns up to limit undelivered follow-ups created
// before cutoff, oldest first.
func (db *DB) ListPendingFollowUps(ctx context.Context, cutoff time.Time, limit int) ([]*FollowUp, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+followUpColumns+`
		FROM followup_medications
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, FollowUpPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending follow-ups: %w", err)
	}
	defer rows.Close()

	out := make([]*FollowUp, 0)
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan follow-up: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MarkFollowUpDelivered records a successful relay.
func (db *DB) MarkFollowUpDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE followup_medications
		SET status = $2, attempts = attempts + 1, last_error = NULL, delivered_at = NOW()
		WHERE id = $1
	`, id, FollowUpDelivered)
	if err != nil {
		return fmt.Errorf("failed to mark follow-up delivered: %w", err)
	}
	return nil
}

// RecordFollowUpAttempt records a failed relay attempt and returns the
// attempt count. When final is set the submission is marked failed.
func (db *DB) RecordFollowUpAttempt(ctx context.Context, id uuid.UUID, lastErr string, final bool) (int, error) {
	status := FollowUpPending
	if final {
		status = FollowUpFailed
	}

	var attempts int
	err := db.Pool.QueryRow(ctx, `
		UPDATE followup_medications
		SET status = $2, attempts = attempts + 1, last_error = $3
		WHERE id = $1
		RETURNING attempts
	`, id, status, lastErr).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record follow-up attempt: %w", err)
	}
	return attempts, nil
}
