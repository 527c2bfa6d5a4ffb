package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/service"
)

// TomatoHandler serves the tomato logging endpoint.
type TomatoHandler struct {
	tomatoes *service.TomatoService
	logger   *slog.Logger
}

// NewTomatoHandler creates a new tomato handler.
func NewTomatoHandler(tomatoes *service.TomatoService, logger *slog.Logger) *TomatoHandler {
	return &TomatoHandler{
		tomatoes: tomatoes,
		logger:   logger,
	}
}

type logTomatoRequest struct {
	CompletedAt time.Time `json:"completedAt"`
}

type tomatoResponse struct {
	ID          string    `json:"id"`
	CompletedAt time.Time `json:"completedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HandleLog records a completed tomato for the authenticated user.
//
// HTTP: POST /api/tomatoes
// REQUEST BODY: {"completedAt": "..."} with an RFC 3339 timestamp.
// The body may be empty, in which case the tomato is stamped with the
// current time.
func (h *TomatoHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	var req logTomatoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid tomato JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	tomato, err := h.tomatoes.Log(r.Context(), user, req.CompletedAt)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tomatoResponse{
		ID:          tomato.ID,
		CompletedAt: tomato.CompletedAt,
		CreatedAt:   tomato.CreatedAt,
	})
}
