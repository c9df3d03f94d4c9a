package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Clinician is an authenticated user of the intake API.
type Clinician struct {
	ID        uuid.UUID `json:"id"`
	Auth0Sub  string    `json:"auth0_sub"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetOrCreateClinician returns the clinician for an Auth0 subject, creating
// the row on first sight and refreshing last_seen otherwise.
func (db *DB) GetOrCreateClinician(ctx context.Context, auth0Sub string) (*Clinician, error) {
	c := &Clinician{}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO clinicians (auth0_sub)
		VALUES ($1)
		ON CONFLICT (auth0_sub) DO UPDATE SET last_seen = NOW()
		RETURNING id, auth0_sub, created_at, last_seen
	`, auth0Sub).Scan(&c.ID, &c.Auth0Sub, &c.CreatedAt, &c.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create clinician: %w", err)
	}
	return c, nil
}
