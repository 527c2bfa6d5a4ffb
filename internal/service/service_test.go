package service

// Shared fakes and fixtures for the service tests. flakyStore wraps the
// real in-memory store so individual repository calls can be forced to
// fail; everything else behaves like a live backend. Using a fake, not
// a mock framework, keeps the failure setup visible in the test itself.

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/tomatrack/tomatrack/internal/auth"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
	"github.com/tomatrack/tomatrack/internal/repository/memory"
)

type flakyStore struct {
	*memory.Store

	// Set to force the corresponding call to fail.
	insertUserErr        error
	updateUserErr        error
	listUsersErr         error
	findByTokenDigestErr error
	countByUserErr       error
	countSinceErr        error
	countBetweenErr      error
	insertScoreErr       error

	// Results consumed one per FindUserByAuthorization call; once
	// drained, calls pass through to the real store. Lets a test
	// script a miss on the first lookup and a hit on the retry.
	findAuthResults []error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New()}
}

func (f *flakyStore) InsertUser(ctx context.Context, user *model.User) error {
	if f.insertUserErr != nil {
		return f.insertUserErr
	}
	return f.Store.InsertUser(ctx, user)
}

func (f *flakyStore) UpdateUser(ctx context.Context, user *model.User) error {
	if f.updateUserErr != nil {
		return f.updateUserErr
	}
	return f.Store.UpdateUser(ctx, user)
}

func (f *flakyStore) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	if f.listUsersErr != nil {
		return nil, f.listUsersErr
	}
	return f.Store.ListUsers(ctx, opts)
}

func (f *flakyStore) FindUserByTokenDigest(ctx context.Context, digest string) (*model.User, error) {
	if f.findByTokenDigestErr != nil {
		return nil, f.findByTokenDigestErr
	}
	return f.Store.FindUserByTokenDigest(ctx, digest)
}

func (f *flakyStore) FindUserByAuthorization(ctx context.Context, provider, uid string) (*model.User, error) {
	if len(f.findAuthResults) > 0 {
		err := f.findAuthResults[0]
		f.findAuthResults = f.findAuthResults[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.Store.FindUserByAuthorization(ctx, provider, uid)
}

func (f *flakyStore) CountTomatoesByUser(ctx context.Context, userIDs []string) (map[string]int64, error) {
	if f.countByUserErr != nil {
		return nil, f.countByUserErr
	}
	return f.Store.CountTomatoesByUser(ctx, userIDs)
}

func (f *flakyStore) CountTomatoesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	if f.countSinceErr != nil {
		return 0, f.countSinceErr
	}
	return f.Store.CountTomatoesSince(ctx, userID, since)
}

func (f *flakyStore) CountTomatoesBetween(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	if f.countBetweenErr != nil {
		return 0, f.countBetweenErr
	}
	return f.Store.CountTomatoesBetween(ctx, userID, from, to)
}

func (f *flakyStore) InsertScore(ctx context.Context, score *model.Score) error {
	if f.insertScoreErr != nil {
		return f.insertScoreErr
	}
	return f.Store.InsertScore(ctx, score)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPayload() auth.Payload {
	return auth.Payload{
		Provider: "github",
		UID:      "4711",
		Token:    "gho_secret",
		Name:     "Grace Hopper",
		Email:    "grace@example.com",
		Nickname: "ghopper",
		Image:    "https://avatars.example.com/grace.png",
	}
}

func mustInsertUser(t *testing.T, store *flakyStore, user *model.User) *model.User {
	t.Helper()
	if err := store.InsertUser(context.Background(), user); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return user
}

func mustLogTomato(t *testing.T, store *flakyStore, userID string, at time.Time) {
	t.Helper()
	if err := store.InsertTomato(context.Background(), &model.Tomato{UserID: userID, CompletedAt: at}); err != nil {
		t.Fatalf("seeding tomato: %v", err)
	}
}
