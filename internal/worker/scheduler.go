package worker

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/pratik-mahalle/tagaudit/internal/pkg/logger"
)

// ScanFunc executes one full scan run.
type ScanFunc func(ctx context.Context) error

// Scheduler runs recurring compliance scans on a cron expression.
type Scheduler struct {
	cron     *cron.Cron
	scan     ScanFunc
	schedule string
	logger   *logger.Logger
}

// NewScheduler creates a scan scheduler. schedule is a standard cron
// expression (five fields).
func NewScheduler(schedule string, scan ScanFunc, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		scan:     scan,
		schedule: schedule,
		logger:   log,
	}
}

// Start begins the scheduling loop and blocks until the context is
// cancelled. The first scan fires immediately; subsequent scans follow the
// cron schedule. Overlapping runs are skipped rather than queued.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.With("schedule", s.schedule).Info("Starting scan scheduler")

	running := make(chan struct{}, 1)
	runScan := func() {
		select {
		case running <- struct{}{}:
			defer func() { <-running }()
		default:
			s.logger.Warn("Previous scan still running, skipping this trigger")
			return
		}
		if err := s.scan(ctx); err != nil {
			s.logger.ErrorWithErr(err, "Scheduled scan failed")
		}
	}

	if _, err := s.cron.AddFunc(s.schedule, runScan); err != nil {
		return err
	}

	// Run initial scan
	runScan()

	s.cron.Start()
	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("Scan scheduler stopped")
	return nil
}
