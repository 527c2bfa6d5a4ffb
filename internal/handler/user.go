package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/auth"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/service"
)

// UserHandler serves the authenticated account endpoints under
// /api/me.
type UserHandler struct {
	users   *service.UserService
	reports *service.ReportService
	logger  *slog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users *service.UserService, reports *service.ReportService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:   users,
		reports: reports,
		logger:  logger,
	}
}

// authorizationResponse exposes a linked provider identity. The raw
// access token never appears here.
type authorizationResponse struct {
	Provider  string    `json:"provider"`
	UID       string    `json:"uid"`
	Nickname  string    `json:"nickname,omitempty"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// profileResponse is the account shape the API returns. Preference
// fields are resolved to their effective values so clients never need
// the fallback rules.
type profileResponse struct {
	ID                string                  `json:"id"`
	Name              string                  `json:"name"`
	Email             string                  `json:"email,omitempty"`
	Image             string                  `json:"image,omitempty"`
	Color             string                  `json:"color"`
	Volume            int                     `json:"volume"`
	Ticking           bool                    `json:"ticking"`
	TimeZone          string                  `json:"timeZone,omitempty"`
	Currency          string                  `json:"currency"`
	CurrencyUnit      string                  `json:"currencyUnit"`
	WorkHoursPerDay   float64                 `json:"workHoursPerDay"`
	AverageHourlyRate float64                 `json:"averageHourlyRate"`
	DailyTomatoGoal   int                     `json:"dailyTomatoGoal"`
	Authorizations    []authorizationResponse `json:"authorizations"`
	CreatedAt         time.Time               `json:"createdAt"`
}

func profileFromUser(u *model.User) profileResponse {
	auths := make([]authorizationResponse, 0, len(u.Authorizations))
	for _, a := range u.Authorizations {
		auths = append(auths, authorizationResponse{
			Provider:  a.Provider,
			UID:       a.UID,
			Nickname:  a.Nickname,
			Image:     a.Image,
			CreatedAt: a.CreatedAt,
		})
	}
	return profileResponse{
		ID:                u.ID,
		Name:              u.DisplayName(),
		Email:             u.Email,
		Image:             u.EffectiveImage(),
		Color:             u.EffectiveColor(),
		Volume:            u.EffectiveVolume(),
		Ticking:           u.Ticking,
		TimeZone:          u.TimeZone,
		Currency:          u.EffectiveCurrency(),
		CurrencyUnit:      u.CurrencyUnit(),
		WorkHoursPerDay:   u.WorkHoursPerDay,
		AverageHourlyRate: u.AverageHourlyRate,
		DailyTomatoGoal:   u.DailyTomatoGoal(),
		Authorizations:    auths,
		CreatedAt:         u.CreatedAt,
	}
}

// requestUser pulls the authenticated user from the request context.
// Routes using it sit behind the user auth middleware, so a miss means
// the route was wired without it; respond 401 rather than panic.
func requestUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
	}
	return user, ok
}

// HandleMe returns the authenticated account.
//
// HTTP: GET /api/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileFromUser(user))
}

// HandleUpdateMe applies a partial profile update to the authenticated
// account. Absent fields keep their stored values.
//
// HTTP: PUT /api/me
// REQUEST BODY: any subset of the profile preference fields.
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	var update service.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Warn("invalid profile JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	updated, err := h.users.UpdateProfile(r.Context(), user, update)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileFromUser(updated))
}

// HandleDeleteMe removes the authenticated account. Completed tomatoes
// and daily scores survive anonymized, so aggregate reports keep their
// history.
//
// HTTP: DELETE /api/me
// RESPONSE: 204 on success.
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("account deleted", slog.String("userID", user.ID))
	w.WriteHeader(http.StatusNoContent)
}

// HandleCounters returns the authenticated user's tomato counts for
// the current day, week and month, evaluated in the user's time zone.
//
// HTTP: GET /api/me/counters
func (h *UserHandler) HandleCounters(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	counters, err := h.reports.Counters(r.Context(), user, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, counters)
}
