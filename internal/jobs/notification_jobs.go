package jobs

import (
	"context"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/money"
)

// SendDefaulterDigest emails wardens the current month's defaulters. Scheduled daily.
func (jr *JobRunner) SendDefaulterDigest() {
	_ = jr.SendDefaulterDigestFor(context.Background(), jr.currentPeriod())
}

// SendDefaulterDigestFor computes defaulters for period with the configured
// due day and late fee and emails the list to the warden addresses.
func (jr *JobRunner) SendDefaulterDigestFor(ctx context.Context, period domain.Period) error {
	return jr.runWithRecovery(ctx, JobSendDefaulterDigest, period, func(ctx context.Context) error {
		billing := jr.config.Billing
		defaulters, err := jr.services.Delinquency.ComputeDefaulters(ctx, period, billing.DueDay, money.Money(billing.LateFeePerDay))
		if err != nil {
			return err
		}

		recipients := jr.config.Email.WardenEmails
		if len(recipients) == 0 || jr.services.Email == nil {
			logger.Info("No warden emails configured, digest not sent", "period", period.String(), "defaulters", len(defaulters))
			return nil
		}

		if err := jr.services.Email.SendDefaulterDigest(ctx, recipients, period, defaulters); err != nil {
			return err
		}
		logger.Info("Defaulter digest sent", "period", period.String(), "defaulters", len(defaulters), "recipients", len(recipients))
		return nil
	})
}
