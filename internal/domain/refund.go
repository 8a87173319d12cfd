package domain

import (
	"time"

	"dorm-ledger-service/internal/money"
)

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusRejected  RefundStatus = "REJECTED"
)

func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusCompleted || s == RefundStatusRejected
}

// IsDecision reports whether s is a valid outcome for resolving a request.
func (s RefundStatus) IsDecision() bool {
	return s.IsTerminal()
}

// RefundRequest reverses part of a booking's security deposit.
type RefundRequest struct {
	ID          int32        `json:"id"`
	PaymentID   int32        `json:"payment_id"` // the SECURITY payment being reversed
	BookingID   int32        `json:"booking_id"`
	Amount      money.Money  `json:"amount"`
	Reason      string       `json:"reason"`
	Status      RefundStatus `json:"status"`
	Notes       string       `json:"notes"`
	RequestedBy *int32       `json:"requested_by"`
	ResolvedBy  *int32       `json:"resolved_by"`
	CreatedAt   time.Time    `json:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at"`
}
