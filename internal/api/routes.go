// Package api provides the HTTP routes of the intake server.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers holds all API handlers
type Handlers struct {
	Prediction *PredictionHandler
	Health     *HealthHandler
}

// RouteOptions configures RegisterRoutes.
type RouteOptions struct {
	// Auth guards /v1 when set.
	Auth fiber.Handler
	// Gatherer backs /metrics; nil omits the endpoint.
	Gatherer prometheus.Gatherer
	// Debug exposes the circuit breaker controls.
	Debug bool
}

// RegisterRoutes registers all API routes
func RegisterRoutes(app *fiber.App, h *Handlers, opts RouteOptions) {
	app.Use(requestID)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "Diabetes Subtype Intake API",
			"version": "1.0.0",
			"status":  "running",
		})
	})
	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if opts.Debug {
		app.Get("/debug/circuit-breakers", h.Health.CircuitBreakers)
		app.Post("/debug/circuit-breakers/:operation/:action", h.Health.ForceBreaker)
	}

	v1 := app.Group("/v1")
	if opts.Auth != nil {
		v1.Use(opts.Auth)
	}

	v1.Post("/validate", h.Prediction.Validate)
	v1.Post("/predictions", h.Prediction.CreatePrediction)
	v1.Get("/predictions", h.Prediction.ListPredictions)
	v1.Get("/predictions/:id", h.Prediction.GetPrediction)
	v1.Get("/predictions/:id/qr", h.Prediction.GetPredictionQR)
	v1.Post("/predictions/:id/medications", h.Prediction.SubmitFollowUp)
}
