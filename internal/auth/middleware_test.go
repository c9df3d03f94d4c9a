package auth

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gofiber/fiber/v2"
)

type fakeValidator struct {
	claims interface{}
	err    error
}

func (f fakeValidator) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	if token != "good" {
		return nil, errors.New("bad signature")
	}
	return f.claims, f.err
}

func newApp(v TokenValidator) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(v))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(GetAuth0Sub(c))
	})
	return app
}

func TestMiddleware(t *testing.T) {
	claims := &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: "auth0|clinician-1"},
	}
	app := newApp(fakeValidator{claims: claims})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid", "Bearer good", 200, "auth0|clinician-1"},
		{"missing", "", 401, ""},
		{"wrong scheme", "Basic good", 401, ""},
		{"empty token", "Bearer ", 401, ""},
		{"bad token", "Bearer bad", 401, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantBody != "" {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %q, want %q", body, tt.wantBody)
				}
			}
		})
	}
}

func TestMiddlewareRejectsUnexpectedClaims(t *testing.T) {
	app := newApp(fakeValidator{claims: map[string]string{"sub": "x"}})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != 401 {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
