package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/auth"
	"github.com/tomatrack/tomatrack/internal/service"
)

// IdentityHandler serves the trusted reconcile endpoint the frontend
// calls after completing an OAuth handshake with a provider.
type IdentityHandler struct {
	identities *service.IdentityService
	logger     *slog.Logger
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(identities *service.IdentityService, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{
		identities: identities,
		logger:     logger,
	}
}

// reconcileRequest mirrors the auth hash a frontend holds after an
// OAuth callback: provider and uid at the top level, profile fields
// under info, the access token under credentials.
type reconcileRequest struct {
	Provider string `json:"provider"`
	UID      string `json:"uid"`
	Info     struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Nickname string `json:"nickname"`
		Image    string `json:"image"`
	} `json:"info"`
	Credentials struct {
		Token string `json:"token"`
	} `json:"credentials"`
}

func (req reconcileRequest) payload() auth.Payload {
	return auth.Payload{
		Provider: req.Provider,
		UID:      req.UID,
		Token:    req.Credentials.Token,
		Name:     req.Info.Name,
		Email:    req.Info.Email,
		Nickname: req.Info.Nickname,
		Image:    req.Info.Image,
	}
}

type reconcileResponse struct {
	User    profileResponse `json:"user"`
	Created bool            `json:"created"`
}

// HandleReconcile finds or creates the account owning the posted
// provider identity and returns its current profile.
//
// HTTP: POST /internal/identity/reconcile
// RESPONSE: 200 with the account when it already existed, 201 when
// this call created it.
func (h *IdentityHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid reconcile JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, created, err := h.identities.Reconcile(r.Context(), req.payload())
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, reconcileResponse{
		User:    profileFromUser(user),
		Created: created,
	})
}
