package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/quizgen/internal/auth"
)

type stubVerifier struct {
	claims *auth.Claims
}

func (s stubVerifier) Validate(token string) (*auth.Claims, error) {
	if s.claims != nil && token == "oidc-token" {
		return s.claims, nil
	}
	return nil, errors.New("bad token")
}

func (stubVerifier) Close() error { return nil }

func newAuthApp(m *AuthMiddleware) *fiber.App {
	app := fiber.New()
	app.Get("/me", m.Authenticate(), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})
	return app
}

func status(t *testing.T, app *fiber.App, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode
}

func TestAuthenticate(t *testing.T) {
	const secret = "test-secret"
	legacy, err := auth.IssueLegacyToken("u-1", "ops@example.com", secret)
	if err != nil {
		t.Fatal(err)
	}
	forged, _ := auth.IssueLegacyToken("u-1", "ops@example.com", "other-secret")
	verifier := stubVerifier{claims: &auth.Claims{UserID: "oidc-user"}}

	tests := []struct {
		name   string
		m      *AuthMiddleware
		header string
		want   int
	}{
		{"missing header", NewAuthMiddleware(nil, secret), "", http.StatusUnauthorized},
		{"not bearer", NewAuthMiddleware(nil, secret), "Basic abc", http.StatusUnauthorized},
		{"legacy token", NewAuthMiddleware(nil, secret), "Bearer " + legacy, http.StatusOK},
		{"forged legacy token", NewAuthMiddleware(nil, secret), "Bearer " + forged, http.StatusUnauthorized},
		{"oidc token", NewAuthMiddleware(verifier, ""), "Bearer oidc-token", http.StatusOK},
		{"oidc rejects without fallback", NewAuthMiddleware(verifier, ""), "Bearer " + legacy, http.StatusUnauthorized},
		{"oidc falls back to legacy", NewAuthMiddleware(verifier, secret), "Bearer " + legacy, http.StatusOK},
		{"nothing configured", NewAuthMiddleware(nil, ""), "Bearer x", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status(t, newAuthApp(tt.m), tt.header); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-Id", "gw-user")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRateLimiter_JobsLimit(t *testing.T) {
	counter := NewMemoryCounter()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	counter.now = func() time.Time { return now }

	app := fiber.New()
	app.Post("/start",
		func(c *fiber.Ctx) error {
			c.Locals("userId", c.Get("X-User"))
			return c.Next()
		},
		NewRateLimiter(counter).JobsLimit(2),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusAccepted) },
	)

	hit := func(user string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/start", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	for i := 0; i < 2; i++ {
		if resp := hit("alice"); resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d status = %d", i+1, resp.StatusCode)
		}
	}
	resp := hit("alice")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "3600" {
		t.Errorf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
	if resp := hit("bob"); resp.StatusCode != http.StatusAccepted {
		t.Errorf("other user status = %d", resp.StatusCode)
	}

	now = now.Add(time.Hour)
	if resp := hit("alice"); resp.StatusCode != http.StatusAccepted {
		t.Errorf("after window status = %d", resp.StatusCode)
	}
}
