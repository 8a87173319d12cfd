// Package ledger derives balances and delinquency figures from bookings and
// their payments. Everything here is pure and safe to call concurrently.
package ledger

import (
	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/money"
)

// Compute derives the ledger snapshot of one booking. Payments and refunds of
// other bookings are ignored.
func Compute(booking *domain.Booking, payments []domain.Payment, refunds []domain.RefundRequest) domain.LedgerSnapshot {
	verified := money.Zero
	claimed := money.Zero
	for i := range payments {
		p := &payments[i]
		if p.BookingID != booking.ID {
			continue
		}
		switch {
		case p.Status == domain.PaymentStatusVerified:
			verified = verified.Add(p.Amount)
		case p.Status.IsClaimed():
			claimed = claimed.Add(p.Amount)
		}
	}

	totalDue := booking.TotalDue()
	refunded := CompletedRefunds(booking.ID, refunds)

	return domain.LedgerSnapshot{
		BookingID:          booking.ID,
		TotalDue:           totalDue,
		VerifiedPaid:       verified,
		AwaitingReview:     claimed,
		OutstandingBalance: totalDue.SubClamped(verified),
		UnsubmittedBalance: totalDue.Sub(verified).SubClamped(claimed),
		PercentComplete:    money.Percent(verified, totalDue),
		RefundedDeposit:    refunded,
		AvailableDeposit:   AvailableDeposit(booking.SecurityDeposit, refunded),
	}
}

// CompletedRefunds sums the completed refunds of a booking.
func CompletedRefunds(bookingID int32, refunds []domain.RefundRequest) money.Money {
	total := money.Zero
	for _, r := range refunds {
		if r.BookingID == bookingID && r.Status == domain.RefundStatusCompleted {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// AvailableDeposit is the part of the deposit that has not been refunded yet.
func AvailableDeposit(deposit, completedRefunds money.Money) money.Money {
	return deposit.SubClamped(completedRefunds)
}
