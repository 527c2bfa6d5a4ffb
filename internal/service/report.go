package service

// Reports and aggregate queries.

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

// Leaderboard size clamps.
const (
	DefaultLeaderboardSize = 20
	MaxLeaderboardSize     = 100
)

// historicUserCount seeds cumulative user totals. The accounts of the
// v1 service that were never migrated still count toward the all-time
// total even though no row exists for them.
const historicUserCount = 973

// dayFormat is the key format for per-day series and score snapshots.
const dayFormat = "2006-01-02"

// Counters are one user's completed tomato totals for the current day,
// ISO week, and month.
type Counters struct {
	Day   int64 `json:"day"`
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
}

// LeaderboardEntry pairs a user with a tomato count for ranking.
type LeaderboardEntry struct {
	User     *model.User
	Tomatoes int64
}

// ReportService computes aggregate views over users, tomatoes, and
// score snapshots.
//
// Per-day bucketing uses loc, the zone the product reports in. A user's
// personal counters are the exception: they follow the user's own zone
// so "today" means the user's today.
type ReportService struct {
	users    repository.UserRepository
	tomatoes repository.TomatoRepository
	scores   repository.ScoreRepository
	loc      *time.Location
	logger   *slog.Logger
}

// NewReportService creates a ReportService bucketing per-day series in
// loc. A nil loc falls back to the server's local zone.
func NewReportService(
	users repository.UserRepository,
	tomatoes repository.TomatoRepository,
	scores repository.ScoreRepository,
	loc *time.Location,
	logger *slog.Logger,
) *ReportService {
	if loc == nil {
		loc = time.Local
	}
	return &ReportService{
		users:    users,
		tomatoes: tomatoes,
		scores:   scores,
		loc:      loc,
		logger:   logger,
	}
}

// UsersByTomatoCount returns the distribution of users over completed
// tomato counts: how many users finished exactly N tomatoes, keyed by N.
// Users without a single tomato land in the zero bucket; counts nobody
// reached are absent.
func (s *ReportService) UsersByTomatoCount(ctx context.Context) (map[int64]int64, error) {
	users, err := s.users.ListUsers(ctx, repository.ListOptions{})
	if err != nil {
		return nil, apperror.Aggregation("listing users", err)
	}
	if len(users) == 0 {
		return map[int64]int64{}, nil
	}

	ids := make([]string, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	counts, err := s.tomatoes.CountTomatoesByUser(ctx, ids)
	if err != nil {
		return nil, apperror.Aggregation("counting tomatoes per user", err)
	}

	return countBy(ids, func(id string) int64 { return counts[id] }), nil
}

// UsersByJoinDay returns how many users joined on each day, keyed by
// day in the report zone.
func (s *ReportService) UsersByJoinDay(ctx context.Context) (map[string]int64, error) {
	users, err := s.users.ListUsers(ctx, repository.ListOptions{})
	if err != nil {
		return nil, apperror.Aggregation("listing users", err)
	}
	return countBy(users, func(u model.User) string { return dayOf(u.CreatedAt, s.loc) }), nil
}

// TotalUsersByJoinDay returns the running total of accounts for each
// day on which somebody joined, seeded with the unmigrated v1 count.
// No users means an empty map, not a seed-only series.
func (s *ReportService) TotalUsersByJoinDay(ctx context.Context) (map[string]int64, error) {
	byDay, err := s.UsersByJoinDay(ctx)
	if err != nil {
		return nil, err
	}
	if len(byDay) == 0 {
		return map[string]int64{}, nil
	}

	totals := make(map[string]int64, len(byDay))
	running := int64(historicUserCount)
	for _, day := range slices.Sorted(maps.Keys(byDay)) {
		running += byDay[day]
		totals[day] = running
	}
	return totals, nil
}

// Counters returns the user's tomato totals for the day, ISO week, and
// month containing now. Boundaries follow the user's configured zone
// when set, otherwise the zone now carries.
func (s *ReportService) Counters(ctx context.Context, user *model.User, now time.Time) (Counters, error) {
	if user == nil || user.ID == "" {
		return Counters{}, apperror.ValidationFailed("user", "user is required")
	}

	loc := user.Location()
	if loc == nil {
		loc = now.Location()
	}

	var c Counters
	var err error
	if c.Day, err = s.tomatoes.CountTomatoesSince(ctx, user.ID, startOfDay(now, loc)); err != nil {
		return Counters{}, apperror.Aggregation("counting tomatoes for the day", err)
	}
	if c.Week, err = s.tomatoes.CountTomatoesSince(ctx, user.ID, startOfWeek(now, loc)); err != nil {
		return Counters{}, apperror.Aggregation("counting tomatoes for the week", err)
	}
	if c.Month, err = s.tomatoes.CountTomatoesSince(ctx, user.ID, startOfMonth(now, loc)); err != nil {
		return Counters{}, apperror.Aggregation("counting tomatoes for the month", err)
	}
	return c, nil
}

// RecordDailyScores snapshots every user's tomato count for the day
// containing day into the scores collection. Users already snapshotted
// for that day are skipped, so re-runs after a partial failure do not
// double-count. Zero-tomato days are not recorded.
func (s *ReportService) RecordDailyScores(ctx context.Context, day time.Time) error {
	start := startOfDay(day, s.loc)
	end := start.AddDate(0, 0, 1)
	dayKey := dayOf(start, s.loc)

	existing, err := s.scores.ListScoresByDay(ctx, dayKey)
	if err != nil {
		return apperror.Aggregation("listing existing scores for "+dayKey, err)
	}
	recorded := make(map[string]bool, len(existing))
	for _, sc := range existing {
		recorded[sc.UserID] = true
	}

	users, err := s.users.ListUsers(ctx, repository.ListOptions{})
	if err != nil {
		return apperror.Aggregation("listing users", err)
	}

	var inserted int
	for i := range users {
		id := users[i].ID
		if recorded[id] {
			continue
		}
		count, err := s.tomatoes.CountTomatoesBetween(ctx, id, start, end)
		if err != nil {
			return apperror.Aggregation("counting tomatoes for user "+id, err)
		}
		if count == 0 {
			continue
		}
		if err := s.scores.InsertScore(ctx, &model.Score{UserID: id, Day: dayKey, Tomatoes: count}); err != nil {
			return fmt.Errorf("recording score for user %s: %w", id, err)
		}
		inserted++
	}

	s.logger.Info("daily scores recorded",
		slog.String("day", dayKey),
		slog.Int("users", inserted),
	)
	return nil
}

// Leaderboard ranks users by all-time completed tomatoes, most first,
// ties broken by user ID for a stable order. Users without tomatoes are
// omitted. size is clamped to 1..MaxLeaderboardSize with a default of
// DefaultLeaderboardSize.
func (s *ReportService) Leaderboard(ctx context.Context, size int) ([]LeaderboardEntry, error) {
	size = clampSize(size)

	users, err := s.users.ListUsers(ctx, repository.ListOptions{})
	if err != nil {
		return nil, apperror.Aggregation("listing users", err)
	}
	if len(users) == 0 {
		return []LeaderboardEntry{}, nil
	}

	ids := make([]string, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	counts, err := s.tomatoes.CountTomatoesByUser(ctx, ids)
	if err != nil {
		return nil, apperror.Aggregation("counting tomatoes per user", err)
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i := range users {
		if counts[users[i].ID] == 0 {
			continue
		}
		entries = append(entries, LeaderboardEntry{User: &users[i], Tomatoes: counts[users[i].ID]})
	}
	slices.SortFunc(entries, func(a, b LeaderboardEntry) int {
		if c := cmp.Compare(b.Tomatoes, a.Tomatoes); c != 0 {
			return c
		}
		return cmp.Compare(a.User.ID, b.User.ID)
	})

	if len(entries) > size {
		entries = entries[:size]
	}
	return entries, nil
}

// LeaderboardForDay ranks users by the recorded score snapshot of one
// day, formatted dayFormat. Snapshots whose account has since been
// deleted are silently dropped.
func (s *ReportService) LeaderboardForDay(ctx context.Context, day string, size int) ([]LeaderboardEntry, error) {
	if _, err := time.ParseInLocation(dayFormat, day, s.loc); err != nil {
		return nil, apperror.ValidationFailed("day", "day must be formatted like 2006-01-02")
	}
	size = clampSize(size)

	scores, err := s.scores.ListScoresByDay(ctx, day)
	if err != nil {
		return nil, apperror.Aggregation("listing scores for "+day, err)
	}
	if len(scores) > size {
		scores = scores[:size]
	}

	entries := make([]LeaderboardEntry, 0, len(scores))
	for _, sc := range scores {
		if sc.UserID == "" {
			continue
		}
		user, err := s.users.GetUserByID(ctx, sc.UserID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			return nil, apperror.Aggregation("loading user "+sc.UserID, err)
		}
		entries = append(entries, LeaderboardEntry{User: user, Tomatoes: sc.Tomatoes})
	}
	return entries, nil
}

func clampSize(size int) int {
	if size <= 0 {
		return DefaultLeaderboardSize
	}
	if size > MaxLeaderboardSize {
		return MaxLeaderboardSize
	}
	return size
}

// countBy tallies items into buckets chosen by key.
func countBy[T any, K comparable](items []T, key func(T) K) map[K]int64 {
	out := make(map[K]int64, len(items))
	for _, it := range items {
		out[key(it)]++
	}
	return out
}

func dayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayFormat)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// startOfWeek returns midnight of the ISO week's Monday.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	day := startOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}
