package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
)

func newTestReportService(store *flakyStore, loc *time.Location) *ReportService {
	return NewReportService(store, store, store, loc, testLogger())
}

func TestCounters(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)
	user := mustInsertUser(t, store, &model.User{Name: "Grace"})

	// now is Wednesday 2024-03-13. The ISO week starts Monday 03-11.
	now := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	mustLogTomato(t, store, user.ID, time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC))   // today
	mustLogTomato(t, store, user.ID, time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC))  // Tuesday
	mustLogTomato(t, store, user.ID, time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC))  // Sunday, previous ISO week
	mustLogTomato(t, store, user.ID, time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC))  // previous month

	c, err := svc.Counters(context.Background(), user, now)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	want := Counters{Day: 1, Week: 2, Month: 3}
	if c != want {
		t.Errorf("Counters() = %+v, want %+v", c, want)
	}
}

func TestCounters_UserZoneBeatsRequestZone(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)

	tokyo := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2024, 3, 13, 1, 0, 0, 0, tokyo) // 2024-03-12 16:00 UTC
	at := time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)

	utcUser := mustInsertUser(t, store, &model.User{Name: "UTC", TimeZone: "UTC"})
	driftUser := mustInsertUser(t, store, &model.User{Name: "Drift"})
	mustLogTomato(t, store, utcUser.ID, at)
	mustLogTomato(t, store, driftUser.ID, at)

	// In the user's configured zone the day began at 03-12 00:00 UTC,
	// so the 14:00 tomato counts toward today.
	c, err := svc.Counters(context.Background(), utcUser, now)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if c.Day != 1 {
		t.Errorf("Day = %d in user zone, want 1", c.Day)
	}

	// Without a configured zone the boundary follows now's zone: the
	// Tokyo day began at 03-12 15:00 UTC, after the tomato.
	c, err = svc.Counters(context.Background(), driftUser, now)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if c.Day != 0 {
		t.Errorf("Day = %d in request zone, want 0", c.Day)
	}
}

func TestCounters_RequiresUser(t *testing.T) {
	svc := newTestReportService(newFlakyStore(), time.UTC)

	_, err := svc.Counters(context.Background(), nil, time.Now())
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Counters(nil) error = %v, want ErrValidation", err)
	}
}

func TestCounters_CountFailure(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)
	user := mustInsertUser(t, store, &model.User{Name: "Grace"})

	store.countSinceErr = errors.New("connection reset")
	_, err := svc.Counters(context.Background(), user, time.Now())
	if !errors.Is(err, apperror.ErrAggregation) {
		t.Errorf("Counters() error = %v, want ErrAggregation", err)
	}
}

func TestUsersByTomatoCount(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)

	at := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	a := mustInsertUser(t, store, &model.User{Name: "A"})
	mustInsertUser(t, store, &model.User{Name: "B"}) // zero tomatoes
	c := mustInsertUser(t, store, &model.User{Name: "C"})
	d := mustInsertUser(t, store, &model.User{Name: "D"})
	mustLogTomato(t, store, a.ID, at)
	mustLogTomato(t, store, a.ID, at.Add(time.Hour))
	mustLogTomato(t, store, c.ID, at)
	mustLogTomato(t, store, c.ID, at.Add(time.Hour))
	mustLogTomato(t, store, d.ID, at)

	dist, err := svc.UsersByTomatoCount(context.Background())
	if err != nil {
		t.Fatalf("UsersByTomatoCount() error = %v", err)
	}

	want := map[int64]int64{0: 1, 1: 1, 2: 2}
	if len(dist) != len(want) {
		t.Fatalf("distribution = %v, want %v", dist, want)
	}
	for bucket, users := range want {
		if dist[bucket] != users {
			t.Errorf("bucket %d = %d users, want %d", bucket, dist[bucket], users)
		}
	}
}

func TestUsersByTomatoCount_Empty(t *testing.T) {
	svc := newTestReportService(newFlakyStore(), time.UTC)

	dist, err := svc.UsersByTomatoCount(context.Background())
	if err != nil {
		t.Fatalf("UsersByTomatoCount() error = %v", err)
	}
	if len(dist) != 0 {
		t.Errorf("distribution = %v, want empty", dist)
	}
}

func TestUsersByTomatoCount_CountFailure(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)
	mustInsertUser(t, store, &model.User{Name: "A"})

	store.countByUserErr = errors.New("connection reset")
	_, err := svc.UsersByTomatoCount(context.Background())
	if !errors.Is(err, apperror.ErrAggregation) {
		t.Errorf("UsersByTomatoCount() error = %v, want ErrAggregation", err)
	}
}

func TestUsersByJoinDay(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)

	mustInsertUser(t, store, &model.User{Name: "A", CreatedAt: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)})
	mustInsertUser(t, store, &model.User{Name: "B", CreatedAt: time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)})
	mustInsertUser(t, store, &model.User{Name: "C", CreatedAt: time.Date(2024, 3, 12, 7, 0, 0, 0, time.UTC)})

	byDay, err := svc.UsersByJoinDay(context.Background())
	if err != nil {
		t.Fatalf("UsersByJoinDay() error = %v", err)
	}
	if byDay["2024-03-10"] != 2 || byDay["2024-03-12"] != 1 || len(byDay) != 2 {
		t.Errorf("byDay = %v", byDay)
	}
}

func TestUsersByJoinDay_BucketsInReportZone(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.FixedZone("UTC+2", 2*60*60))

	// 23:30 UTC is already the next day two hours east.
	mustInsertUser(t, store, &model.User{Name: "A", CreatedAt: time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)})

	byDay, err := svc.UsersByJoinDay(context.Background())
	if err != nil {
		t.Fatalf("UsersByJoinDay() error = %v", err)
	}
	if byDay["2024-03-11"] != 1 {
		t.Errorf("byDay = %v, want the join bucketed on 2024-03-11", byDay)
	}
}

func TestTotalUsersByJoinDay(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)

	mustInsertUser(t, store, &model.User{Name: "A", CreatedAt: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)})
	mustInsertUser(t, store, &model.User{Name: "B", CreatedAt: time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)})
	mustInsertUser(t, store, &model.User{Name: "C", CreatedAt: time.Date(2024, 3, 12, 7, 0, 0, 0, time.UTC)})

	totals, err := svc.TotalUsersByJoinDay(context.Background())
	if err != nil {
		t.Fatalf("TotalUsersByJoinDay() error = %v", err)
	}
	if totals["2024-03-10"] != historicUserCount+2 {
		t.Errorf("total on 03-10 = %d, want %d", totals["2024-03-10"], historicUserCount+2)
	}
	if totals["2024-03-12"] != historicUserCount+3 {
		t.Errorf("total on 03-12 = %d, want %d", totals["2024-03-12"], historicUserCount+3)
	}
}

func TestTotalUsersByJoinDay_Empty(t *testing.T) {
	svc := newTestReportService(newFlakyStore(), time.UTC)

	totals, err := svc.TotalUsersByJoinDay(context.Background())
	if err != nil {
		t.Fatalf("TotalUsersByJoinDay() error = %v", err)
	}
	if len(totals) != 0 {
		t.Errorf("totals = %v, want empty map without the historic seed", totals)
	}
}

func TestTotalUsersByJoinDay_ListFailure(t *testing.T) {
	store := newFlakyStore()
	store.listUsersErr = errors.New("connection reset")
	svc := newTestReportService(store, time.UTC)

	_, err := svc.TotalUsersByJoinDay(context.Background())
	if !errors.Is(err, apperror.ErrAggregation) {
		t.Errorf("TotalUsersByJoinDay() error = %v, want ErrAggregation", err)
	}
}

func TestRecordDailyScores(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)

	day := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	a := mustInsertUser(t, store, &model.User{Name: "A"})
	b := mustInsertUser(t, store, &model.User{Name: "B"})
	c := mustInsertUser(t, store, &model.User{Name: "C"})
	mustLogTomato(t, store, a.ID, day.Add(9*time.Hour))
	mustLogTomato(t, store, a.ID, day.Add(10*time.Hour))
	mustLogTomato(t, store, a.ID, day.Add(11*time.Hour))
	mustLogTomato(t, store, b.ID, day.Add(26*time.Hour)) // next day
	mustLogTomato(t, store, c.ID, day.Add(9*time.Hour))
	mustLogTomato(t, store, c.ID, day.Add(23*time.Hour))

	if err := svc.RecordDailyScores(context.Background(), day.Add(15*time.Hour)); err != nil {
		t.Fatalf("RecordDailyScores() error = %v", err)
	}

	scores, err := store.ListScoresByDay(context.Background(), "2024-03-13")
	if err != nil {
		t.Fatalf("ListScoresByDay() error = %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("scores = %+v, want 2 entries", scores)
	}
	if scores[0].UserID != a.ID || scores[0].Tomatoes != 3 {
		t.Errorf("scores[0] = %+v, want user A with 3", scores[0])
	}
	if scores[1].UserID != c.ID || scores[1].Tomatoes != 2 {
		t.Errorf("scores[1] = %+v, want user C with 2", scores[1])
	}
}

func TestRecordDailyScores_Rerun(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)

	day := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	a := mustInsertUser(t, store, &model.User{Name: "A"})
	mustLogTomato(t, store, a.ID, day.Add(9*time.Hour))

	if err := svc.RecordDailyScores(context.Background(), day); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	if err := svc.RecordDailyScores(context.Background(), day); err != nil {
		t.Fatalf("second run error = %v", err)
	}

	scores, err := store.ListScoresByDay(context.Background(), "2024-03-13")
	if err != nil {
		t.Fatalf("ListScoresByDay() error = %v", err)
	}
	if len(scores) != 1 {
		t.Errorf("scores = %+v, want re-runs to skip recorded users", scores)
	}
}

func TestLeaderboard(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)

	at := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	a := mustInsertUser(t, store, &model.User{Name: "A"})
	b := mustInsertUser(t, store, &model.User{Name: "B"})
	mustInsertUser(t, store, &model.User{Name: "C"}) // zero tomatoes
	for i := 0; i < 5; i++ {
		mustLogTomato(t, store, a.ID, at.Add(time.Duration(i)*time.Minute))
	}
	mustLogTomato(t, store, b.ID, at)
	mustLogTomato(t, store, b.ID, at.Add(time.Minute))

	entries, err := svc.Leaderboard(context.Background(), 0)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (zero-count users omitted)", len(entries))
	}
	if entries[0].User.ID != a.ID || entries[0].Tomatoes != 5 {
		t.Errorf("entries[0] = %s/%d, want A/5", entries[0].User.Name, entries[0].Tomatoes)
	}
	if entries[1].User.ID != b.ID || entries[1].Tomatoes != 2 {
		t.Errorf("entries[1] = %s/%d, want B/2", entries[1].User.Name, entries[1].Tomatoes)
	}

	top1, err := svc.Leaderboard(context.Background(), 1)
	if err != nil {
		t.Fatalf("Leaderboard(1) error = %v", err)
	}
	if len(top1) != 1 || top1[0].User.ID != a.ID {
		t.Errorf("top1 = %+v, want just A", top1)
	}
}

func TestLeaderboardForDay(t *testing.T) {
	store := newFlakyStore()
	svc := newTestReportService(store, time.UTC)

	a := mustInsertUser(t, store, &model.User{Name: "A"})
	if err := store.InsertScore(context.Background(), &model.Score{UserID: a.ID, Day: "2024-03-13", Tomatoes: 5}); err != nil {
		t.Fatalf("seeding score: %v", err)
	}
	// A snapshot from an account deleted since.
	if err := store.InsertScore(context.Background(), &model.Score{UserID: "gone", Day: "2024-03-13", Tomatoes: 9}); err != nil {
		t.Fatalf("seeding score: %v", err)
	}

	entries, err := svc.LeaderboardForDay(context.Background(), "2024-03-13", 0)
	if err != nil {
		t.Fatalf("LeaderboardForDay() error = %v", err)
	}
	if len(entries) != 1 || entries[0].User.ID != a.ID || entries[0].Tomatoes != 5 {
		t.Errorf("entries = %+v, want only A's snapshot", entries)
	}
}

func TestLeaderboardForDay_BadDay(t *testing.T) {
	svc := newTestReportService(newFlakyStore(), time.UTC)

	_, err := svc.LeaderboardForDay(context.Background(), "13-03-2024", 0)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("LeaderboardForDay() error = %v, want ErrValidation", err)
	}
}
