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

// Prediction is a stored prediction with the normalized inputs it was
// computed from.
type Prediction struct {
	ID            string                     `json:"id"`
	RequestID     string                     `json:"request_id"`
	SubmittedBy   *uuid.UUID                 `json:"submitted_by,omitempty"`
	Request       clinical.NormalizedRequest `json:"request"`
	Cluster       clinical.Cluster           `json:"cluster_label"`
	Probabilities clinical.Probabilities     `json:"probabilities"`
	CreatedAt     time.Time                  `json:"created_at"`
}

// CreatePrediction inserts a prediction. CreatedAt is filled from the row.
func (db *DB) CreatePrediction(ctx context.Context, p *Prediction) error {
	meds, err := json.Marshal(p.Request.Medications)
	if err != nil {
		return fmt.Errorf("failed to encode medications: %w", err)
	}

	r := p.Request
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO predictions (id, request_id, submitted_by, gad, hba1c, bmi, age, cpeptide, glucose, medications, cluster_label, probabilities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, p.ID, p.RequestID, p.SubmittedBy, r.GAD, r.HbA1c, r.BMI, r.Age, r.CPeptide, r.Glucose,
		meds, string(p.Cluster), p.Probabilities.Slice()).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create prediction: %w", err)
	}
	return nil
}

const predictionColumns = `id, request_id, submitted_by, gad, hba1c, bmi, age, cpeptide, glucose, medications, cluster_label, probabilities, created_at`

func scanPrediction(row pgx.Row) (*Prediction, error) {
	var (
		p     Prediction
		meds  []byte
		label string
		probs []float64
	)
	err := row.Scan(
		&p.ID, &p.RequestID, &p.SubmittedBy,
		&p.Request.GAD, &p.Request.HbA1c, &p.Request.BMI, &p.Request.Age,
		&p.Request.CPeptide, &p.Request.Glucose,
		&meds, &label, &probs, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(meds, &p.Request.Medications); err != nil {
		return nil, fmt.Errorf("failed to decode medications: %w", err)
	}
	if p.Cluster, err = clinical.ParseCluster(label); err != nil {
		return nil, fmt.Errorf("stored prediction %s: %w", p.ID, err)
	}
	if p.Probabilities, err = clinical.ProbabilitiesFromSlice(probs); err != nil {
		return nil, fmt.Errorf("stored prediction %s: %w", p.ID, err)
	}
	return &p, nil
}

// GetPrediction retrieves a prediction by ID.
func (db *DB) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	p, err := scanPrediction(db.Pool.QueryRow(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// ListClinicianPredictions returns a clinician's predictions, newest first.
func (db *DB) ListClinicianPredictions(ctx context.Context, clinicianID uuid.UUID, limit, offset int) ([]*Prediction, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		WHERE submitted_by = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, clinicianID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	out := make([]*Prediction, 0)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	return out, nil
}
