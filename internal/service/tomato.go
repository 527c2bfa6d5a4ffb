package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

// MaxCompletionSkew bounds how far ahead of server time a reported
// completion may lie. Clients time the interval locally, so a little
// clock drift is tolerated; anything beyond it is a bad client.
const MaxCompletionSkew = time.Minute

// TomatoService records completed work intervals.
type TomatoService struct {
	tomatoes repository.TomatoRepository
	logger   *slog.Logger
}

// NewTomatoService creates a TomatoService.
func NewTomatoService(tomatoes repository.TomatoRepository, logger *slog.Logger) *TomatoService {
	return &TomatoService{
		tomatoes: tomatoes,
		logger:   logger,
	}
}

// Log records a completed tomato for the user. A zero completedAt means
// "just now". Completions claimed from the future are rejected.
func (s *TomatoService) Log(ctx context.Context, user *model.User, completedAt time.Time) (*model.Tomato, error) {
	if user == nil || user.ID == "" {
		return nil, apperror.ValidationFailed("user", "user is required")
	}

	now := time.Now()
	if completedAt.IsZero() {
		completedAt = now
	}
	if completedAt.After(now.Add(MaxCompletionSkew)) {
		return nil, apperror.ValidationFailed("completedAt", "completedAt must not be in the future")
	}

	tomato := &model.Tomato{
		UserID:      user.ID,
		CompletedAt: completedAt,
	}
	if err := s.tomatoes.InsertTomato(ctx, tomato); err != nil {
		s.logger.Error("failed to log tomato",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("logging tomato: %w", err)
	}

	s.logger.Info("tomato logged",
		slog.String("tomatoID", tomato.ID),
		slog.String("userID", user.ID),
	)
	return tomato, nil
}
