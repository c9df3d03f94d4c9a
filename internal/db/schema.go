package db

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS clinicians (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	auth0_sub   TEXT NOT NULL UNIQUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS predictions (
	id             TEXT PRIMARY KEY,
	request_id     TEXT NOT NULL,
	submitted_by   UUID REFERENCES clinicians(id),
	gad            SMALLINT NOT NULL CHECK (gad IN (0, 1)),
	hba1c          DOUBLE PRECISION NOT NULL,
	bmi            DOUBLE PRECISION NOT NULL,
	age            DOUBLE PRECISION NOT NULL,
	cpeptide       DOUBLE PRECISION NOT NULL,
	glucose        DOUBLE PRECISION NOT NULL,
	medications    JSONB NOT NULL,
	cluster_label  TEXT NOT NULL,
	probabilities  DOUBLE PRECISION[] NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_predictions_submitted_by ON predictions (submitted_by, created_at DESC);

CREATE TABLE IF NOT EXISTS followup_medications (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	prediction_id  TEXT NOT NULL REFERENCES predictions(id),
	medications    JSONB NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	attempts       INT NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	delivered_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_followup_prediction ON followup_medications (prediction_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_followup_pending ON followup_medications (created_at) WHERE status = 'pending';
`

// EnsureSchema creates the tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
