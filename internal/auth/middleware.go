package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomatrack/tomatrack/internal/model"
)

// contextKey is an unexported type used for context keys in this
// package. Only this package can create keys of this type, so no other
// package can read or shadow the values stored under them.
type contextKey string

const (
	userKey   contextKey = "user"
	callerKey contextKey = "caller"
)

// UserResolver resolves an opaque access token to the account that owns
// it. Implemented by the identity service.
type UserResolver interface {
	FindByToken(ctx context.Context, token string) (*model.User, error)
}

// RequireUser enforces end-user authentication on protected routes.
//
// It reads the bearer token from the Authorization header, resolves it
// to an account, and stores the account in the request context. If the
// token is missing or unknown the chain stops with 401 Unauthorized.
func RequireUser(users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			user, err := users.FindByToken(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// RequireService gates internal routes behind a signed service token.
// The verified caller name is stored in the request context for logging.
func RequireService(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			caller, err := tokens.Validate(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithUser returns a copy of ctx carrying an authenticated user.
// Exported so handler tests can simulate an authenticated request
// without running the middleware.
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user from the request
// context. Returns (nil, false) if RequireUser did not run.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// CallerFromContext retrieves the verified service caller name, if any.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey).(string)
	return caller, ok && caller != ""
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
// Returns "" when the header is absent or uses a different scheme.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
}
