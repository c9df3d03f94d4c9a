// Subtype Intake Server - Main Application Entry Point
//
// Validates clinical intake forms, obtains diabetes subtype predictions from
// the prediction service and records them.
//
// To run:
//
//	go run ./cmd/server
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/api"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/auth"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/cache"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/db"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/metrics"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/services"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/validator"
)

func main() {
	// Load .env file (ignore error if file doesn't exist - use system env vars)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[subtype-intake] %v", err)
	}

	log.Printf("[subtype-intake] Starting with configuration:")
	log.Printf("  Listen: %s:%s", cfg.Host, cfg.Port)
	log.Printf("  Prediction Service: %s", cfg.PredictionServiceURL)
	log.Printf("  Prediction Timeout: %v", cfg.PredictionTimeout)
	log.Printf("  CB Failure Threshold: %d", cfg.CBFailureThreshold)
	log.Printf("  Retry Enabled: %v (max attempts %d)", cfg.RetryEnabled, cfg.RetryMaxAttempts)
	log.Printf("  Consent Required: %v", cfg.ConsentRequired)
	log.Printf("  Range Checks: %v", cfg.RangeChecksEnabled)
	log.Printf("  Conversion: glucose %.4f mg/dL per mmol/L, c-peptide %.4f nmol per ng", cfg.GlucoseMgPerMmol, cfg.CPeptideNgToNmol)
	log.Printf("  Auth0: %v", cfg.AuthEnabled())

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("subtype-intake", registry)

	database, err := db.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to prepare database: %v", err)
	}
	log.Println("Connected to PostgreSQL")

	redisCache, err := cache.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()
	log.Println("Connected to Redis")

	predictor := prediction.NewFromConfig(cfg, m)
	defer predictor.Close()

	v := validator.New(validator.Config{
		ConsentRequired: cfg.ConsentRequired,
		RangeChecks:     cfg.RangeChecksEnabled,
		Conversion: validator.Conversion{
			GlucoseMgPerMmol: cfg.GlucoseMgPerMmol,
			CPeptideNgToNmol: cfg.CPeptideNgToNmol,
		},
	})
	intake := services.NewIntakeService(v, predictor, database, redisCache, m)

	handlers := &api.Handlers{
		Prediction: api.NewPredictionHandler(intake, services.NewQRService(cfg.BaseURL), redisCache, cfg.RateLimitPredictPerMinute, cfg.RequestTimeout()),
		Health: api.NewHealthHandler(map[string]api.HealthChecker{
			"postgres": database,
			"redis":    redisCache,
		}, predictor.Breakers()),
	}

	opts := api.RouteOptions{Gatherer: registry, Debug: cfg.DebugRoutes}
	if cfg.AuthEnabled() {
		jwtValidator, err := auth.NewValidator(cfg)
		if err != nil {
			log.Fatalf("Failed to configure Auth0: %v", err)
		}
		opts.Auth = auth.Middleware(jwtValidator)
	}

	app := fiber.New(fiber.Config{
		AppName:      "Subtype Intake API",
		ServerHeader: "subtype-intake",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    64 * 1024,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(m.Middleware())

	api.RegisterRoutes(app, handlers, opts)

	go func() {
		addr := cfg.Host + ":" + cfg.Port
		log.Printf("[subtype-intake] Listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("[subtype-intake] Shutdown initiated")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("[subtype-intake] Shutdown complete")
}
