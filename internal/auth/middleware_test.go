package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
)

// stubResolver is a hand-rolled UserResolver for middleware tests.
type stubResolver struct {
	user     *model.User
	err      error
	gotToken string
}

func (s *stubResolver) FindByToken(ctx context.Context, token string) (*model.User, error) {
	s.gotToken = token
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func TestRequireUser_ValidToken(t *testing.T) {
	resolver := &stubResolver{user: &model.User{ID: "u1", Name: "Grace"}}

	var seen *model.User
	handler := RequireUser(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if resolver.gotToken != "tok-123" {
		t.Errorf("resolver received token %q, want %q", resolver.gotToken, "tok-123")
	}
	if seen == nil || seen.ID != "u1" {
		t.Errorf("user in context = %+v, want u1", seen)
	}
}

func TestRequireUser_MissingHeader(t *testing.T) {
	resolver := &stubResolver{user: &model.User{ID: "u1"}}

	called := false
	handler := RequireUser(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler ran despite missing credentials")
	}
}

func TestRequireUser_WrongScheme(t *testing.T) {
	resolver := &stubResolver{user: &model.User{ID: "u1"}}
	handler := RequireUser(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireUser_LowercaseScheme(t *testing.T) {
	// Scheme matching is case-insensitive per RFC 7235.
	resolver := &stubResolver{user: &model.User{ID: "u1"}}
	handler := RequireUser(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "bearer tok-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if resolver.gotToken != "tok-123" {
		t.Errorf("resolver received token %q, want %q", resolver.gotToken, "tok-123")
	}
}

func TestRequireUser_UnknownToken(t *testing.T) {
	resolver := &stubResolver{err: apperror.NotFound("user", "token")}
	handler := RequireUser(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireService_ValidToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, err := ts.Generate("frontend")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var caller string
	handler := RequireService(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/internal/identity/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if caller != "frontend" {
		t.Errorf("caller = %q, want %q", caller, "frontend")
	}
}

func TestRequireService_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, err := ts.GenerateWithDuration("frontend", -time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	handler := RequireService(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/internal/identity/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireService_MissingToken(t *testing.T) {
	ts := newTestTokenService(t)
	handler := RequireService(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/internal/identity/reconcile", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestUserFromContext_Anonymous(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("UserFromContext() = ok on empty context")
	}
	if _, ok := UserFromContext(ContextWithUser(context.Background(), nil)); ok {
		t.Error("UserFromContext() = ok for nil user")
	}
}
