package domain

import (
	"time"

	"dorm-ledger-service/internal/money"
)

// LedgerSnapshot is derived from a booking and its payments on every read.
// It is never persisted.
type LedgerSnapshot struct {
	BookingID          int32       `json:"booking_id"`
	TotalDue           money.Money `json:"total_due"`
	VerifiedPaid       money.Money `json:"verified_paid"`
	AwaitingReview     money.Money `json:"awaiting_review"`
	OutstandingBalance money.Money `json:"outstanding_balance"`
	UnsubmittedBalance money.Money `json:"unsubmitted_balance"`
	PercentComplete    int         `json:"percent_complete"`
	RefundedDeposit    money.Money `json:"refunded_deposit"`
	AvailableDeposit   money.Money `json:"available_deposit"`
}

// Defaulter is an active booking without verified rent for a period.
type Defaulter struct {
	Booking         Booking     `json:"booking"`
	OverdueDays     int         `json:"overdue_days"`
	LateFee         money.Money `json:"late_fee"`
	TotalDue        money.Money `json:"total_due"`
	LastPaymentDate *time.Time  `json:"last_payment_date"`
}

// DuesResult summarises one run of monthly dues generation.
type DuesResult struct {
	Period  Period `json:"period"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
}
