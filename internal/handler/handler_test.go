package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomatrack/tomatrack/internal/auth"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository/memory"
	"github.com/tomatrack/tomatrack/internal/service"
)

// testEnv wires real services over the in-memory store so handler
// tests exercise the full request path below the router.
type testEnv struct {
	store      *memory.Store
	identities *service.IdentityService
	users      *service.UserService
	reports    *service.ReportService
	tomatoes   *service.TomatoService
	projects   *service.ProjectService
}

func newTestEnv() *testEnv {
	logger := testLogger()
	store := memory.New()
	return &testEnv{
		store:      store,
		identities: service.NewIdentityService(store, logger),
		users:      service.NewUserService(store, store, store, store, logger),
		reports:    service.NewReportService(store, store, store, time.UTC, logger),
		tomatoes:   service.NewTomatoService(store, logger),
		projects:   service.NewProjectService(store, logger),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T {
	return &v
}

// mustCreateUser registers an account through the reconcile flow, the
// same way production accounts come into existence.
func (e *testEnv) mustCreateUser(t *testing.T, provider, uid, name, token string) *model.User {
	t.Helper()
	user, _, err := e.identities.Reconcile(context.Background(), auth.Payload{
		Provider: provider,
		UID:      uid,
		Token:    token,
		Name:     name,
	})
	require.NoError(t, err)
	return user
}

// authedRequest builds a request whose context already carries the
// user, as it would after the auth middleware ran.
func authedRequest(method, target string, body io.Reader, user *model.User) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(auth.ContextWithUser(req.Context(), user))
}
