package api

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/circuitbreaker"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/metrics"
)

// HealthChecker is a dependency probed by /ready.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves liveness, readiness and breaker debug endpoints.
type HealthHandler struct {
	checks   map[string]HealthChecker
	breakers *circuitbreaker.Registry
}

// NewHealthHandler creates the handler. breakers may be nil.
func NewHealthHandler(checks map[string]HealthChecker, breakers *circuitbreaker.Registry) *HealthHandler {
	return &HealthHandler{checks: checks, breakers: breakers}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready handles GET /ready. Storage failures make the service not ready;
// an open breaker is reported but does not, since /v1/validate still works.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{}
	ready := true

	for name, checker := range h.checks {
		if err := checker.HealthCheck(ctx); err != nil {
			checks[name] = fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			ready = false
			continue
		}
		checks[name] = fiber.Map{"status": "healthy"}
	}

	body := fiber.Map{
		"status": "ready",
		"checks": checks,
	}
	if h.breakers != nil {
		body["circuit_breakers"] = h.breakerStatuses()
	}
	if !ready {
		body["status"] = "not_ready"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	return c.JSON(body)
}

// CircuitBreakers handles GET /debug/circuit-breakers
func (h *HealthHandler) CircuitBreakers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"circuit_breakers": h.breakerStatuses()})
}

// ForceBreaker handles POST /debug/circuit-breakers/:operation/:action
func (h *HealthHandler) ForceBreaker(c *fiber.Ctx) error {
	if h.breakers == nil {
		return writeError(c, fiber.StatusNotFound, "not_found", "no circuit breakers")
	}
	op := c.Params("operation")
	if op != metrics.OpPredict && op != metrics.OpMedications {
		return writeError(c, fiber.StatusNotFound, "not_found", "unknown operation")
	}
	cb := h.breakers.Get(op)

	switch c.Params("action") {
	case "open":
		cb.ForceOpen()
	case "close":
		cb.ForceClose()
	default:
		return writeError(c, fiber.StatusBadRequest, "invalid_action", "action must be open or close")
	}
	return c.JSON(cb.Status())
}

func (h *HealthHandler) breakerStatuses() []circuitbreaker.Status {
	if h.breakers == nil {
		return nil
	}
	statuses := h.breakers.Statuses()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Operation < statuses[j].Operation })
	return statuses
}
