package jobs

import (
	"context"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
)

// GenerateMonthlyDues creates this month's rent dues. Scheduled on the 1st.
func (jr *JobRunner) GenerateMonthlyDues() {
	_ = jr.GenerateMonthlyDuesFor(context.Background(), jr.currentPeriod())
}

// GenerateMonthlyDuesFor creates rent dues for period. Re-running it for the
// same period creates nothing new.
func (jr *JobRunner) GenerateMonthlyDuesFor(ctx context.Context, period domain.Period) error {
	return jr.runWithRecovery(ctx, JobGenerateMonthlyDues, period, func(ctx context.Context) error {
		res, err := jr.services.Dues.GenerateMonthlyDues(ctx, period)
		if err != nil {
			return err
		}
		logger.Info("Monthly dues generated", "period", period.String(), "created", res.Created, "skipped", res.Skipped)
		return nil
	})
}
