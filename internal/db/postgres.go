// Package db stores predictions, follow-up medication submissions and the
// clinicians who made them in PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool
func New(cfg *config.Config) (*DB, error) {
	return Open(context.Background(), cfg.DatabaseURL(), cfg.PostgresMaxConns)
}

// Open connects to databaseURL and pings it.
func Open(ctx context.Context, databaseURL string, maxConns int) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// HealthCheck pings the database and checks the schema is in place.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var present bool
	err := db.Pool.QueryRow(ctx, `SELECT to_regclass('public.predictions') IS NOT NULL`).Scan(&present)
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	if !present {
		return errors.New("predictions table missing")
	}
	return nil
}

// Stats returns database pool statistics
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}
