package jobs

import (
	"context"
	"fmt"
	"time"

	"dorm-ledger-service/internal/config"
	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/lock"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/metrics"
	"dorm-ledger-service/internal/service"
)

const (
	JobGenerateMonthlyDues = "generate-monthly-dues"
	JobSendDefaulterDigest = "send-defaulter-digest"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	locker   lock.Locker
	metrics  *metrics.Metrics
	config   *config.Config
	now      func() time.Time
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Dues        service.DuesService
	Delinquency service.DelinquencyService
	Email       service.EmailService
}

// NewJobRunner creates a new job runner with all dependencies. A nil locker
// runs jobs unguarded.
func NewJobRunner(services *Services, locker lock.Locker, m *metrics.Metrics, cfg *config.Config) *JobRunner {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	return &JobRunner{
		services: services,
		locker:   locker,
		metrics:  m,
		config:   cfg,
		now:      time.Now,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

func (jr *JobRunner) currentPeriod() domain.Period {
	return domain.PeriodOf(jr.now().UTC())
}

// runWithRecovery wraps job execution with a distributed lock, panic
// recovery and metrics. A job whose lock is held elsewhere is skipped.
func (jr *JobRunner) runWithRecovery(ctx context.Context, jobName string, period domain.Period, jobFunc func(ctx context.Context) error) (err error) {
	ttl := jr.config.LockTTL()
	key := fmt.Sprintf("job:%s:%s", jobName, period)

	release, ok, err := jr.locker.Acquire(ctx, key, ttl)
	if err != nil {
		logger.Error("Failed to acquire job lock", "job", jobName, "key", key, "error", err)
		jr.metrics.JobRun(jobName, err)
		return err
	}
	if !ok {
		logger.Info("Job already running elsewhere, skipping", "job", jobName, "period", period.String())
		return nil
	}
	defer func() {
		if rerr := release(context.Background()); rerr != nil {
			logger.Warn("Failed to release job lock", "job", jobName, "key", key, "error", rerr)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
		jr.metrics.JobRun(jobName, err)
	}()

	jobCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	logger.Info("Starting job", "job", jobName, "period", period.String())
	if err := jobFunc(jobCtx); err != nil {
		logger.Error("Job failed", "job", jobName, "period", period.String(), "error", err)
		return err
	}
	logger.Info("Job completed", "job", jobName, "period", period.String())
	return nil
}

// RunAll runs every job once for period (for manual execution)
func (jr *JobRunner) RunAll(ctx context.Context, period domain.Period) error {
	if err := jr.GenerateMonthlyDuesFor(ctx, period); err != nil {
		return err
	}
	return jr.SendDefaulterDigestFor(ctx, period)
}
