// Package cache provides the Redis-backed idempotent-replay cache, rate
// limiter and follow-up medication stream.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
)

// ErrCacheMiss is returned when a key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// RedisCache wraps the Redis client for caching operations
type RedisCache struct {
	client        *redis.Client
	predictionTTL time.Duration
	stream        string
}

// New creates a new Redis cache client
func New(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     50,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, cfg.PredictionCacheTTL, cfg.FollowUpStream), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, predictionTTL time.Duration, stream string) *RedisCache {
	return &RedisCache{
		client:        client,
		predictionTTL: predictionTTL,
		stream:        stream,
	}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// HealthCheck performs a Redis health check
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Stats returns Redis pool statistics
func (c *RedisCache) Stats() *redis.PoolStats {
	return c.client.PoolStats()
}

// predictionKey hashes a replay key so client-supplied values never appear
// in key names.
func predictionKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "prediction:" + hex.EncodeToString(sum[:])
}

// GetPrediction returns the prediction cached under key.
func (c *RedisCache) GetPrediction(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, predictionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get error: %w", err)
	}
	return val, nil
}

// SetPrediction caches a prediction for the configured TTL. A zero TTL
// disables the cache.
func (c *RedisCache) SetPrediction(ctx context.Context, key string, data []byte) error {
	if c.predictionTTL <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, predictionKey(key), data, c.predictionTTL).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// CheckRateLimit counts a request against a fixed window.
// Returns true if request is allowed, false if rate limited
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rateLimitKey := "ratelimit:" + key

	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit error: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		c.client.Expire(ctx, rateLimitKey, window)
	}

	return count <= int64(limit), nil
}

// FollowUpEvent is one queued follow-up delivery.
type FollowUpEvent struct {
	// MessageID is the stream entry ID, set on read.
	MessageID    string
	FollowUpID   string
	PredictionID string
	Attempt      int
}

// EnqueueFollowUp adds a follow-up delivery to the stream.
func (c *RedisCache) EnqueueFollowUp(ctx context.Context, ev FollowUpEvent) error {
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]interface{}{
			"followup_id":   ev.FollowUpID,
			"prediction_id": ev.PredictionID,
			"attempt":       ev.Attempt,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("stream add error: %w", err)
	}
	return nil
}

// ReadFollowUps reads and removes up to count queued deliveries, waiting up
// to block for the first one. A negative block returns immediately; zero
// blocks until an entry arrives. Malformed entries are dropped. Removed
// entries are not redelivered; the database row stays pending until the
// caller records the outcome.
func (c *RedisCache) ReadFollowUps(ctx context.Context, count int, block time.Duration) ([]FollowUpEvent, error) {
	result, err := c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{c.stream, "0"},
		Count:   int64(count),
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}

	events := make([]FollowUpEvent, 0)
	for _, stream := range result {
		for _, msg := range stream.Messages {
			// Acknowledge and delete the message
			c.client.XDel(ctx, stream.Stream, msg.ID)

			ev, ok := parseFollowUp(msg)
			if !ok {
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func parseFollowUp(msg redis.XMessage) (FollowUpEvent, bool) {
	followUpID, _ := msg.Values["followup_id"].(string)
	predictionID, _ := msg.Values["prediction_id"].(string)
	if followUpID == "" || predictionID == "" {
		return FollowUpEvent{}, false
	}
	attempt := 0
	if s, ok := msg.Values["attempt"].(string); ok {
		attempt, _ = strconv.Atoi(s)
	}
	return FollowUpEvent{
		MessageID:    msg.ID,
		FollowUpID:   followUpID,
		PredictionID: predictionID,
		Attempt:      attempt,
	}, true
}
