// Follow-up relay worker: delivers queued follow-up medication submissions
// to the prediction service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/cache"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/db"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/metrics"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/worker"
)

func main() {
	// Load .env file (ignore error if file doesn't exist - use system env vars)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[relay] %v", err)
	}

	database, err := db.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to PostgreSQL")

	redisCache, err := cache.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()
	log.Println("Connected to Redis")

	registry := prometheus.NewRegistry()
	m := metrics.New("subtype-intake-relay", registry)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[relay] metrics server error: %v", err)
		}
	}()
	sender := prediction.NewFromConfig(cfg, m)
	defer sender.Close()

	relay := worker.NewRelay(redisCache, database, sender, m, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Start(ctx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down follow-up relay...")
	cancel()
	<-done
	metricsServer.Close()
	log.Println("Follow-up relay stopped")
}
