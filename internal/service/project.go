package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

// MaxProjectNameLength caps project names.
const MaxProjectNameLength = 100

// ProjectService manages the projects users file tomatoes under.
type ProjectService struct {
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// NewProjectService creates a ProjectService.
func NewProjectService(projects repository.ProjectRepository, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		projects: projects,
		logger:   logger,
	}
}

// Create adds a named project for the user.
func (s *ProjectService) Create(ctx context.Context, user *model.User, name string) (*model.Project, error) {
	if user == nil || user.ID == "" {
		return nil, apperror.ValidationFailed("user", "user is required")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "project name is required")
	}
	if len(name) > MaxProjectNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("project name must be %d characters or less", MaxProjectNameLength))
	}

	project := &model.Project{
		UserID: user.ID,
		Name:   name,
	}
	if err := s.projects.InsertProject(ctx, project); err != nil {
		s.logger.Error("failed to create project",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating project: %w", err)
	}

	s.logger.Info("project created",
		slog.String("projectID", project.ID),
		slog.String("userID", user.ID),
	)
	return project, nil
}

// ListMine returns the user's projects in creation order.
func (s *ProjectService) ListMine(ctx context.Context, user *model.User) ([]model.Project, error) {
	if user == nil || user.ID == "" {
		return nil, apperror.ValidationFailed("user", "user is required")
	}

	projects, err := s.projects.ListProjectsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}
