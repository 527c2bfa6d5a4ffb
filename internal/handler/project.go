package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/service"
)

// ProjectHandler serves the project endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		logger:   logger,
	}
}

type createProjectRequest struct {
	Name string `json:"name"`
}

type projectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func projectFromModel(p *model.Project) projectResponse {
	return projectResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
	}
}

// HandleCreate creates a project owned by the authenticated user.
//
// HTTP: POST /api/projects
// REQUEST BODY: {"name": "..."}
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid project JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	project, err := h.projects.Create(r.Context(), user, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, projectFromModel(project))
}

// HandleListMine returns the authenticated user's projects in creation
// order.
//
// HTTP: GET /api/me/projects
func (h *ProjectHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	projects, err := h.projects.ListMine(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]projectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, projectFromModel(&projects[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
