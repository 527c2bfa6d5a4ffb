package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
)

func newTestTomatoService(store *flakyStore) *TomatoService {
	return NewTomatoService(store, testLogger())
}

func TestLog_DefaultsToNow(t *testing.T) {
	store := newFlakyStore()
	svc := newTestTomatoService(store)
	user := mustInsertUser(t, store, &model.User{Name: "Grace"})

	before := time.Now()
	tomato, err := svc.Log(context.Background(), user, time.Time{})
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if tomato.ID == "" {
		t.Error("tomato.ID not assigned")
	}
	if tomato.CompletedAt.Before(before) || tomato.CompletedAt.After(time.Now()) {
		t.Errorf("CompletedAt = %v, want roughly now", tomato.CompletedAt)
	}

	counts, err := store.CountTomatoesByUser(context.Background(), []string{user.ID})
	if err != nil {
		t.Fatalf("CountTomatoesByUser() error = %v", err)
	}
	if counts[user.ID] != 1 {
		t.Errorf("stored tomatoes = %d, want 1", counts[user.ID])
	}
}

func TestLog_KeepsReportedTime(t *testing.T) {
	store := newFlakyStore()
	svc := newTestTomatoService(store)
	user := mustInsertUser(t, store, &model.User{Name: "Grace"})

	// Clients report the end of the interval they timed, which can lag
	// the request by the duration of a flaky network retry.
	at := time.Now().Add(-10 * time.Minute).Truncate(time.Second)
	tomato, err := svc.Log(context.Background(), user, at)
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if !tomato.CompletedAt.Equal(at) {
		t.Errorf("CompletedAt = %v, want %v preserved", tomato.CompletedAt, at)
	}
}

func TestLog_RejectsFutureCompletion(t *testing.T) {
	store := newFlakyStore()
	svc := newTestTomatoService(store)
	user := mustInsertUser(t, store, &model.User{Name: "Grace"})

	_, err := svc.Log(context.Background(), user, time.Now().Add(2*time.Minute))
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Log() error = %v, want ErrValidation", err)
	}

	// Drift within the allowed skew is accepted.
	if _, err := svc.Log(context.Background(), user, time.Now().Add(30*time.Second)); err != nil {
		t.Errorf("Log() within skew error = %v", err)
	}
}

func TestLog_RequiresUser(t *testing.T) {
	svc := newTestTomatoService(newFlakyStore())

	_, err := svc.Log(context.Background(), nil, time.Time{})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Log(nil) error = %v, want ErrValidation", err)
	}
}
