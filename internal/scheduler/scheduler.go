// Package scheduler runs the recurring background jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomatrack/tomatrack/internal/service"
)

// snapshotTimeout bounds one snapshot run. Counting every user's day
// is linear in accounts, so a stuck store must not pin the job forever.
const snapshotTimeout = 5 * time.Minute

// Scheduler owns the cron runner and the jobs registered on it.
type Scheduler struct {
	cron    *cron.Cron
	reports *service.ReportService
	logger  *slog.Logger
}

// New creates a Scheduler. Jobs are registered separately and nothing
// runs until Start.
func New(reports *service.ReportService, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		reports: reports,
		logger:  logger,
	}
}

// AddSnapshotJob registers the daily score snapshot on the given cron
// spec, e.g. "@daily" or "30 0 * * *". The job records yesterday's
// scores: the day being over, its counts are final.
func (s *Scheduler) AddSnapshotJob(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.recordYesterday); err != nil {
		return fmt.Errorf("scheduler: invalid snapshot schedule %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) recordYesterday() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	yesterday := time.Now().AddDate(0, 0, -1)
	if err := s.reports.RecordDailyScores(ctx, yesterday); err != nil {
		s.logger.Error("daily score snapshot failed", slog.String("error", err.Error()))
	}
}

// Start begins running registered jobs in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
