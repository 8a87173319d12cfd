package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"dorm-ledger-service/internal/jobs"
	"dorm-ledger-service/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner. It fails
// when a configured schedule does not parse.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	// Monthly: rent dues for the new month
	if _, err := s.cron.AddFunc(cfg.GenerateMonthlyDues, s.jobs.GenerateMonthlyDues); err != nil {
		logger.Error("Failed to register GenerateMonthlyDues job", "error", err)
		return fmt.Errorf("schedule %q for %s: %w", cfg.GenerateMonthlyDues, jobs.JobGenerateMonthlyDues, err)
	}

	// Daily: defaulter digest for wardens
	if _, err := s.cron.AddFunc(cfg.SendDefaulterDigest, s.jobs.SendDefaulterDigest); err != nil {
		logger.Error("Failed to register SendDefaulterDigest job", "error", err)
		return fmt.Errorf("schedule %q for %s: %w", cfg.SendDefaulterDigest, jobs.JobSendDefaulterDigest, err)
	}

	logger.Info("All cron jobs registered successfully", "jobs", len(s.cron.Entries()))
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries returns the registered jobs and their next run times
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}
