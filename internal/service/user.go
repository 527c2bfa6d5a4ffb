package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

// UserService handles profile settings and account removal.
type UserService struct {
	users    repository.UserRepository
	tomatoes repository.TomatoRepository
	projects repository.ProjectRepository
	scores   repository.ScoreRepository
	logger   *slog.Logger
}

// NewUserService creates a UserService. The tomato, project, and score
// repositories are needed to detach an account's history on deletion.
func NewUserService(
	users repository.UserRepository,
	tomatoes repository.TomatoRepository,
	projects repository.ProjectRepository,
	scores repository.ScoreRepository,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		tomatoes: tomatoes,
		projects: projects,
		scores:   scores,
		logger:   logger,
	}
}

// ProfileUpdate carries the settable profile fields. A nil field means
// "leave unchanged", so handlers can decode a partial JSON body
// straight into it.
type ProfileUpdate struct {
	Name              *string  `json:"name"`
	Color             *string  `json:"color"`
	Volume            *int     `json:"volume"`
	Ticking           *bool    `json:"ticking"`
	TimeZone          *string  `json:"timeZone"`
	Currency          *string  `json:"currency"`
	WorkHoursPerDay   *float64 `json:"workHoursPerDay"`
	AverageHourlyRate *float64 `json:"averageHourlyRate"`
}

// UpdateProfile applies the update to the user, validates the result,
// and persists it. The user is modified in place and returned.
func (s *UserService) UpdateProfile(ctx context.Context, user *model.User, update ProfileUpdate) (*model.User, error) {
	if user == nil || user.ID == "" {
		return nil, apperror.ValidationFailed("user", "user is required")
	}

	if update.Name != nil {
		user.Name = strings.TrimSpace(*update.Name)
	}
	if update.Color != nil {
		user.Color = *update.Color
	}
	if update.Volume != nil {
		v := *update.Volume
		user.Volume = &v
	}
	if update.Ticking != nil {
		user.Ticking = *update.Ticking
	}
	if update.TimeZone != nil {
		user.TimeZone = *update.TimeZone
	}
	if update.Currency != nil {
		user.Currency = *update.Currency
	}
	if update.WorkHoursPerDay != nil {
		user.WorkHoursPerDay = *update.WorkHoursPerDay
	}
	if update.AverageHourlyRate != nil {
		user.AverageHourlyRate = *update.AverageHourlyRate
	}

	if err := validateProfile(user); err != nil {
		return nil, err
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrDuplicate) {
			return nil, err
		}
		s.logger.Error("failed to update profile",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	s.logger.Info("profile updated", slog.String("userID", user.ID))
	return user, nil
}

// validateProfile enforces the settings rules on a fully merged user.
func validateProfile(u *model.User) error {
	if u.Color != "" && !model.ValidColor(u.Color) {
		return apperror.ValidationFailed("color", "color must be a hex value like #83c062")
	}
	if u.Volume != nil && (*u.Volume < model.MinVolume || *u.Volume > model.MaxVolume) {
		return apperror.ValidationFailed("volume",
			fmt.Sprintf("volume must be between %d and %d", model.MinVolume, model.MaxVolume))
	}
	if u.Currency != "" {
		if _, ok := model.CurrencyByCode(u.Currency); !ok {
			return apperror.ValidationFailed("currency",
				"currency must be one of "+strings.Join(model.CurrencyCodes(), ", "))
		}
	}
	if u.TimeZone != "" && u.Location() == nil {
		return apperror.ValidationFailed("timeZone", "timeZone must be a valid IANA zone name")
	}
	if u.WorkHoursPerDay < 0 || u.WorkHoursPerDay > 24 {
		return apperror.ValidationFailed("workHoursPerDay", "workHoursPerDay must be between 0 and 24")
	}
	if u.AverageHourlyRate < 0 {
		return apperror.ValidationFailed("averageHourlyRate", "averageHourlyRate must not be negative")
	}
	return nil
}

// Delete removes the account. Its tomatoes, projects, and scores are
// detached first, so the rows survive anonymously and keep feeding the
// aggregate reports.
func (s *UserService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "user ID is required")
	}

	if err := s.tomatoes.DetachTomatoesFromUser(ctx, id); err != nil {
		return fmt.Errorf("detaching tomatoes of user %s: %w", id, err)
	}
	if err := s.projects.DetachProjectsFromUser(ctx, id); err != nil {
		return fmt.Errorf("detaching projects of user %s: %w", id, err)
	}
	if err := s.scores.DetachScoresFromUser(ctx, id); err != nil {
		return fmt.Errorf("detaching scores of user %s: %w", id, err)
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.logger.Info("user deleted", slog.String("userID", id))
	return nil
}
