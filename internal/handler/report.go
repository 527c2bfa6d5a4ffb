package handler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/cache"
	"github.com/tomatrack/tomatrack/internal/service"
)

// Cached report payloads are keyed by name and version. Bump the
// version when a response shape changes so stale cache entries never
// decode into the new shape.
const reportKeyPrefix = "reports:v1:"

// ReportHandler serves the public aggregate report endpoints. Report
// responses are identical for every caller, so they are cached with a
// short TTL. A nil cache disables caching and every request recomputes.
type ReportHandler struct {
	reports *service.ReportService
	cache   *cache.Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reports *service.ReportService, c *cache.Cache, ttl time.Duration, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

// seriesPoint is one point of a per-day series, ordered by day.
type seriesPoint struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// bucketPoint is one bucket of the tomato count distribution.
type bucketPoint struct {
	Tomatoes int64 `json:"tomatoes"`
	Users    int64 `json:"users"`
}

type leaderboardEntryResponse struct {
	Rank             int     `json:"rank"`
	Name             string  `json:"name"`
	Image            string  `json:"image,omitempty"`
	Tomatoes         int64   `json:"tomatoes"`
	EstimatedRevenue float64 `json:"estimatedRevenue,omitempty"`
	CurrencyUnit     string  `json:"currencyUnit,omitempty"`
}

// seriesFromCounts flattens a day-keyed count map into a series sorted
// by day. Day keys are ISO dates, so lexicographic order is
// chronological order.
func seriesFromCounts(counts map[string]int64) []seriesPoint {
	points := make([]seriesPoint, 0, len(counts))
	for _, day := range slices.Sorted(maps.Keys(counts)) {
		points = append(points, seriesPoint{Day: day, Count: counts[day]})
	}
	return points
}

// HandleUsersByTomatoCount serves the distribution of users over their
// lifetime tomato counts.
//
// HTTP: GET /api/reports/users/by-tomatoes
func (h *ReportHandler) HandleUsersByTomatoCount(w http.ResponseWriter, r *http.Request) {
	points, err := cache.GetOrLoadJSON(r.Context(), h.cache, reportKeyPrefix+"users-by-tomatoes", h.ttl,
		func(ctx context.Context) ([]bucketPoint, error) {
			counts, err := h.reports.UsersByTomatoCount(ctx)
			if err != nil {
				return nil, err
			}
			points := make([]bucketPoint, 0, len(counts))
			for _, bucket := range slices.Sorted(maps.Keys(counts)) {
				points = append(points, bucketPoint{Tomatoes: bucket, Users: counts[bucket]})
			}
			h.logger.Debug("report computed", slog.String("report", "users-by-tomatoes"))
			return points, nil
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleUsersByJoinDay serves the number of accounts created on each
// day.
//
// HTTP: GET /api/reports/users/by-day
func (h *ReportHandler) HandleUsersByJoinDay(w http.ResponseWriter, r *http.Request) {
	points, err := cache.GetOrLoadJSON(r.Context(), h.cache, reportKeyPrefix+"users-by-day", h.ttl,
		func(ctx context.Context) ([]seriesPoint, error) {
			counts, err := h.reports.UsersByJoinDay(ctx)
			if err != nil {
				return nil, err
			}
			h.logger.Debug("report computed", slog.String("report", "users-by-day"))
			return seriesFromCounts(counts), nil
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleTotalUsersByJoinDay serves the running total of accounts over
// time, including the historic count from before per-user records
// existed.
//
// HTTP: GET /api/reports/users/total-by-day
func (h *ReportHandler) HandleTotalUsersByJoinDay(w http.ResponseWriter, r *http.Request) {
	points, err := cache.GetOrLoadJSON(r.Context(), h.cache, reportKeyPrefix+"users-total-by-day", h.ttl,
		func(ctx context.Context) ([]seriesPoint, error) {
			counts, err := h.reports.TotalUsersByJoinDay(ctx)
			if err != nil {
				return nil, err
			}
			h.logger.Debug("report computed", slog.String("report", "users-total-by-day"))
			return seriesFromCounts(counts), nil
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleLeaderboard serves the tomato leaderboard: live lifetime
// counts by default, or a recorded daily snapshot when ?day= names an
// ISO date.
//
// HTTP: GET /api/reports/leaderboard?size=20&day=2026-08-22
func (h *ReportHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	size, err := sizeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	day := r.URL.Query().Get("day")

	key := fmt.Sprintf("%sleaderboard:%s:%d", reportKeyPrefix, day, size)
	entries, err := cache.GetOrLoadJSON(r.Context(), h.cache, key, h.ttl,
		func(ctx context.Context) ([]leaderboardEntryResponse, error) {
			var (
				raw []service.LeaderboardEntry
				err error
			)
			if day == "" {
				raw, err = h.reports.Leaderboard(ctx, size)
			} else {
				raw, err = h.reports.LeaderboardForDay(ctx, day, size)
			}
			if err != nil {
				return nil, err
			}

			out := make([]leaderboardEntryResponse, 0, len(raw))
			for i, e := range raw {
				entry := leaderboardEntryResponse{
					Rank:     i + 1,
					Name:     e.User.DisplayName(),
					Image:    e.User.EffectiveImage(),
					Tomatoes: e.Tomatoes,
				}
				if revenue := e.User.EstimatedRevenue(e.Tomatoes); revenue > 0 {
					entry.EstimatedRevenue = revenue
					entry.CurrencyUnit = e.User.CurrencyUnit()
				}
				out = append(out, entry)
			}
			h.logger.Debug("report computed",
				slog.String("report", "leaderboard"),
				slog.String("day", day),
				slog.Int("size", size),
			)
			return out, nil
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func sizeParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("size")
	if raw == "" {
		return 0, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed("size", "size must be an integer")
	}
	return size, nil
}
