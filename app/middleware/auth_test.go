package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/middleware"
	"github.com/vibast-solutions/ms-go-account/app/token"

	"github.com/labstack/echo/v4"
)

type signerValidator struct {
	signer *token.AccessSigner
}

func (v signerValidator) ValidateAccessToken(tokenString string) (*dto.TokenInfo, error) {
	claims, err := v.signer.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	return &dto.TokenInfo{AccountID: claims.AccountID(), Username: claims.Username}, nil
}

func newMiddleware(now func() time.Time) (*middleware.AuthMiddleware, *token.AccessSigner) {
	signer := token.NewAccessSigner("test-secret", 15*time.Minute, token.WithClock(now))
	return middleware.NewAuthMiddleware(signerValidator{signer: signer}), signer
}

func serve(t *testing.T, authMiddleware *middleware.AuthMiddleware, header string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if next == nil {
		next = func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	}
	if err := authMiddleware.RequireAuth(next)(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body["error"]
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	authMiddleware, _ := newMiddleware(time.Now)

	rec := serve(t, authMiddleware, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireAuth_InvalidHeaderFormat(t *testing.T) {
	authMiddleware, _ := newMiddleware(time.Now)

	rec := serve(t, authMiddleware, "Token abc", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "invalid authorization header format" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	authMiddleware, _ := newMiddleware(time.Now)

	rec := serve(t, authMiddleware, "Bearer invalid-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "invalid token" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	issued := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	authMiddleware, signer := newMiddleware(func() time.Time { return issued.Add(time.Hour) })

	tokenString, err := signer.Mint("id-1", "alice", issued)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	rec := serve(t, authMiddleware, "Bearer "+tokenString, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "token has expired" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestRequireAuth_SetsContextOnValidToken(t *testing.T) {
	authMiddleware, signer := newMiddleware(time.Now)

	tokenString, err := signer.Mint("id-1", "alice", time.Now())
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	rec := serve(t, authMiddleware, "Bearer "+tokenString, func(c echo.Context) error {
		if id := middleware.AccountID(c); id != "id-1" {
			t.Fatalf("expected account_id id-1, got %v", c.Get(middleware.ContextKeyAccountID))
		}
		if username, ok := c.Get(middleware.ContextKeyUsername).(string); !ok || username != "alice" {
			t.Fatalf("expected username alice, got %v", c.Get(middleware.ContextKeyUsername))
		}
		return c.NoContent(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}
