package api

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/services"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/validator"
)

// ErrorBody is the JSON error envelope of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// writeServiceError maps workflow errors onto HTTP responses. Validation
// failures and prediction service failures never share a code.
func writeServiceError(c *fiber.Ctx, err error) error {
	var verr *validator.Error
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorBody{Error: ErrorDetail{
			Code:    verr.Kind.String(),
			Message: verr.Reason,
			Field:   verr.Field,
		}})
	}

	var serr *prediction.ServiceError
	if errors.As(err, &serr) {
		switch {
		case errors.Is(err, prediction.ErrRejected):
			msg := serr.Message
			if msg == "" {
				msg = "prediction service rejected the request"
			}
			return writeError(c, fiber.StatusUnprocessableEntity, "prediction_rejected", msg)
		case errors.Is(err, prediction.ErrCircuitOpen):
			c.Set(fiber.HeaderRetryAfter, "30")
			return writeError(c, fiber.StatusServiceUnavailable, "prediction_service_circuit_open", "prediction service temporarily disabled")
		case errors.Is(err, prediction.ErrMalformedResponse):
			log.Printf("[api] %v", err)
			return writeError(c, fiber.StatusBadGateway, "prediction_service_bad_response", "prediction service returned an unreadable response")
		default:
			log.Printf("[api] %v", err)
			return writeError(c, fiber.StatusBadGateway, "prediction_service_unavailable", "prediction service unavailable")
		}
	}

	if errors.Is(err, services.ErrPredictionNotFound) {
		return writeError(c, fiber.StatusNotFound, "prediction_not_found", "prediction not found")
	}
	if errors.Is(err, services.ErrIdempotencyConflict) {
		return writeError(c, fiber.StatusConflict, "idempotency_key_reused", "Idempotency-Key was already used for a different form")
	}

	log.Printf("[api] internal error: %v", err)
	return writeError(c, fiber.StatusInternalServerError, "internal_error", "internal server error")
}
