// Package auth validates Auth0 access tokens for the clinician-facing API.
package auth

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gofiber/fiber/v2"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
)

const localSub = "auth0_sub"

// CustomClaims contains custom claims from the Auth0 token.
type CustomClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Validate implements validator.CustomClaims.
func (c *CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// TokenValidator validates a raw bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (interface{}, error)
}

// NewValidator creates an RS256 validator backed by the tenant's JWKS.
func NewValidator(cfg *config.Config) (*validator.Validator, error) {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parse Auth0 issuer URL: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	v, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("create JWT validator: %w", err)
	}
	return v, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// token subject for handlers.
func Middleware(v TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "missing authorization header")
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			return unauthorized(c, "invalid authorization header format")
		}

		claims, err := v.ValidateToken(c.Context(), token)
		if err != nil {
			log.Printf("[auth] token validation failed: %v", err)
			return unauthorized(c, "invalid token")
		}

		validated, ok := claims.(*validator.ValidatedClaims)
		if !ok || validated.RegisteredClaims.Subject == "" {
			return unauthorized(c, "invalid claims format")
		}

		c.Locals(localSub, validated.RegisteredClaims.Subject)
		return c.Next()
	}
}

// GetAuth0Sub returns the authenticated subject, or "" on unauthenticated
// routes.
func GetAuth0Sub(c *fiber.Ctx) string {
	if sub, ok := c.Locals(localSub).(string); ok {
		return sub
	}
	return ""
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "unauthorized",
			"message": message,
		},
	})
}
