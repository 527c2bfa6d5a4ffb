package handler

// Response helpers shared by all endpoints. Every error body has the
// same shape, {"error": "...", "message": "..."}, so clients parse one
// format regardless of status.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tomatrack/tomatrack/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API
// endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends a JSON response with the given status code. Headers
// and status must be written before the body; once Encode writes, the
// headers are on the wire.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError translates a domain error into the status code and error
// kind the API exposes. Anything that is not a typed application error
// becomes an opaque 500: raw store errors can carry queries or
// connection strings and must never reach a client. Persistence and
// aggregation failures are typed but their messages embed the cause,
// so those are masked the same way.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"
		message := appErr.Message

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrDuplicate):
			status = http.StatusConflict
			errorType = "duplicate"
		default:
			message = "An internal error occurred"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: message,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
