package api

import (
	"context"
	"log"
	"time"

	playvalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/auth"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/db"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/services"
)

// RateLimiter counts requests per key in a fixed window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PredictionHandler serves the intake and prediction endpoints.
type PredictionHandler struct {
	intake    *services.IntakeService
	qr        *services.QRService
	limiter   RateLimiter
	rateLimit int
	timeout   time.Duration
	validate  *playvalidator.Validate
}

// NewPredictionHandler creates the handler. limiter may be nil.
func NewPredictionHandler(intake *services.IntakeService, qr *services.QRService, limiter RateLimiter, ratePerMinute int, timeout time.Duration) *PredictionHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PredictionHandler{
		intake:    intake,
		qr:        qr,
		limiter:   limiter,
		rateLimit: ratePerMinute,
		timeout:   timeout,
		validate:  playvalidator.New(),
	}
}

// IntakeRequest is the body of POST /v1/validate and POST /v1/predictions.
// Clinical values are the text as typed.
type IntakeRequest struct {
	clinical.RawInput
	Medications clinical.MedicationSelection `json:"medications"`
	Consent     bool                         `json:"consent"`
}

// FollowUpRequest is the body of POST /v1/predictions/:id/medications.
type FollowUpRequest struct {
	Medications clinical.MedicationSelection `json:"medications"`
}

// HeaderIdempotencyKey marks retries of one prediction request.
const HeaderIdempotencyKey = "Idempotency-Key"

type idempotencyHeader struct {
	Key string `validate:"omitempty,max=128,printascii"`
}

type predictionPath struct {
	ID string `validate:"required,max=128,printascii"`
}

type qrQuery struct {
	Size int `query:"size" validate:"omitempty,min=100,max=1000"`
}

type listQuery struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// PredictionResponse presents a stored prediction.
type PredictionResponse struct {
	ID            string                       `json:"prediction_id"`
	ClusterLabel  clinical.Cluster             `json:"cluster_label"`
	Description   string                       `json:"description"`
	Probabilities map[clinical.Cluster]float64 `json:"probabilities"`
	Request       clinical.NormalizedRequest   `json:"request"`
	Link          string                       `json:"link"`
	Cached        bool                         `json:"cached,omitempty"`
	CreatedAt     time.Time                    `json:"created_at"`
}

func (h *PredictionHandler) toResponse(p *db.Prediction, cached bool) *PredictionResponse {
	return &PredictionResponse{
		ID:            p.ID,
		ClusterLabel:  p.Cluster,
		Description:   p.Cluster.Description(),
		Probabilities: p.Probabilities.ByCluster(),
		Request:       p.Request,
		Link:          h.qr.PredictionLink(p.ID),
		Cached:        cached,
		CreatedAt:     p.CreatedAt,
	}
}

func (r IntakeRequest) submission() services.Submission {
	return services.Submission{Raw: r.RawInput, Medications: r.Medications, Consent: r.Consent}
}

// Validate handles POST /v1/validate - validation only
func (h *PredictionHandler) Validate(c *fiber.Ctx) error {
	var req IntakeRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_body", "invalid request body")
	}

	normalized, err := h.intake.Validate(req.submission())
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "normalized",
		"payload": normalized,
	})
}

// CreatePrediction handles POST /v1/predictions
func (h *PredictionHandler) CreatePrediction(c *fiber.Ctx) error {
	if allowed := h.allow(c); !allowed {
		return writeError(c, fiber.StatusTooManyRequests, "rate_limited", "too many prediction requests")
	}

	var req IntakeRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_body", "invalid request body")
	}
	key := idempotencyHeader{Key: c.Get(HeaderIdempotencyKey)}
	if err := h.validate.Struct(key); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key must be at most 128 printable characters")
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	clinician, err := h.caller(ctx, c)
	if err != nil {
		return writeServiceError(c, err)
	}
	sub := req.submission()
	sub.SubmittedBy = clinician
	sub.IdempotencyKey = key.Key

	res, err := h.intake.Submit(ctx, sub)
	if err != nil {
		return writeServiceError(c, err)
	}

	status := fiber.StatusCreated
	if res.Cached {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(h.toResponse(res.Prediction, res.Cached))
}

// ListPredictions handles GET /v1/predictions - the caller's predictions
func (h *PredictionHandler) ListPredictions(c *fiber.Ctx) error {
	var q listQuery
	if err := c.QueryParser(&q); err != nil || h.validate.Struct(q) != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_query", "limit must be 1-100 and offset non-negative")
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	sub := auth.GetAuth0Sub(c)
	if sub == "" {
		return writeError(c, fiber.StatusUnauthorized, "unauthorized", "listing requires an authenticated clinician")
	}

	ctx := c.Context()
	clinician, err := h.intake.ResolveClinician(ctx, sub)
	if err != nil {
		return writeServiceError(c, err)
	}
	preds, err := h.intake.ListPredictions(ctx, *clinician, q.Limit, q.Offset)
	if err != nil {
		return writeServiceError(c, err)
	}

	out := make([]*PredictionResponse, 0, len(preds))
	for _, p := range preds {
		out = append(out, h.toResponse(p, false))
	}
	return c.JSON(fiber.Map{
		"predictions": out,
		"limit":       q.Limit,
		"offset":      q.Offset,
	})
}

// GetPrediction handles GET /v1/predictions/:id
func (h *PredictionHandler) GetPrediction(c *fiber.Ctx) error {
	id, ok := h.pathID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "invalid_prediction_id", "invalid prediction ID")
	}

	ctx := c.Context()
	clinician, err := h.caller(ctx, c)
	if err != nil {
		return writeServiceError(c, err)
	}
	p, err := h.intake.GetPrediction(ctx, id, clinician)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(h.toResponse(p, false))
}

// GetPredictionQR handles GET /v1/predictions/:id/qr - PNG link to the result
func (h *PredictionHandler) GetPredictionQR(c *fiber.Ctx) error {
	id, ok := h.pathID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "invalid_prediction_id", "invalid prediction ID")
	}
	var q qrQuery
	if err := c.QueryParser(&q); err != nil || h.validate.Struct(q) != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_query", "size must be between 100 and 1000")
	}
	if q.Size == 0 {
		q.Size = services.DefaultQRSize
	}

	ctx := c.Context()
	clinician, err := h.caller(ctx, c)
	if err != nil {
		return writeServiceError(c, err)
	}
	if _, err := h.intake.GetPrediction(ctx, id, clinician); err != nil {
		return writeServiceError(c, err)
	}

	png, err := h.qr.PredictionPNG(id, q.Size)
	if err != nil {
		log.Printf("[api] qr generation failed: %v", err)
		return writeError(c, fiber.StatusInternalServerError, "qr_failed", "failed to generate QR code")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	return c.Send(png)
}

// SubmitFollowUp handles POST /v1/predictions/:id/medications
func (h *PredictionHandler) SubmitFollowUp(c *fiber.Ctx) error {
	id, ok := h.pathID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "invalid_prediction_id", "invalid prediction ID")
	}

	var req FollowUpRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_body", "invalid request body")
	}

	ctx := c.Context()
	clinician, err := h.caller(ctx, c)
	if err != nil {
		return writeServiceError(c, err)
	}
	f, err := h.intake.SubmitFollowUp(ctx, id, clinician, req.Medications)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(f)
}

// caller resolves the authenticated clinician, nil for anonymous requests.
func (h *PredictionHandler) caller(ctx context.Context, c *fiber.Ctx) (*uuid.UUID, error) {
	return h.intake.ResolveClinician(ctx, auth.GetAuth0Sub(c))
}

func (h *PredictionHandler) pathID(c *fiber.Ctx) (string, bool) {
	p := predictionPath{ID: c.Params("id")}
	if err := h.validate.Struct(p); err != nil {
		return "", false
	}
	return p.ID, true
}

// allow applies the per-client prediction rate limit. Limiter errors fail
// open.
func (h *PredictionHandler) allow(c *fiber.Ctx) bool {
	if h.limiter == nil || h.rateLimit <= 0 {
		return true
	}
	key := "predict:" + auth.GetAuth0Sub(c)
	if key == "predict:" {
		key = "predict:ip:" + c.IP()
	}

	ok, err := h.limiter.CheckRateLimit(c.Context(), key, h.rateLimit, time.Minute)
	if err != nil {
		log.Printf("[api] rate limit check failed: %v", err)
		return true
	}
	return ok
}

// requestID tags a response for log correlation.
func requestID(c *fiber.Ctx) error {
	id := c.Get(fiber.HeaderXRequestID)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)
	return c.Next()
}
