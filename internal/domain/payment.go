package domain

import (
	"fmt"
	"strings"
	"time"

	"dorm-ledger-service/internal/money"
)

type PaymentType string

const (
	PaymentTypeRent        PaymentType = "RENT"
	PaymentTypeSecurity    PaymentType = "SECURITY"
	PaymentTypeMaintenance PaymentType = "MAINTENANCE"
	PaymentTypeLateFee     PaymentType = "LATE_FEE"
	PaymentTypeOther       PaymentType = "OTHER"
)

func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeRent, PaymentTypeSecurity, PaymentTypeMaintenance, PaymentTypeLateFee, PaymentTypeOther:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodEasypaisa    PaymentMethod = "EASYPAISA"
	PaymentMethodJazzCash     PaymentMethod = "JAZZCASH"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodEasypaisa, PaymentMethodJazzCash, PaymentMethodCheque:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusSubmittedPending PaymentStatus = "SUBMITTED_PENDING"
	PaymentStatusAwaitingReview   PaymentStatus = "AWAITING_REVIEW"
	PaymentStatusVerified         PaymentStatus = "VERIFIED"
	PaymentStatusRejected         PaymentStatus = "REJECTED"
	PaymentStatusCancelled        PaymentStatus = "CANCELLED"
)

// Statuses written by older clients of the payments table.
const (
	legacyStatusPending PaymentStatus = "PENDING"
	legacyStatusPartial PaymentStatus = "PARTIAL"
	legacyStatusPaid    PaymentStatus = "PAID"
	legacyStatusOverdue PaymentStatus = "OVERDUE"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusSubmittedPending, PaymentStatusAwaitingReview, PaymentStatusVerified,
		PaymentStatusRejected, PaymentStatusCancelled:
		return true
	}
	return false
}

// IsClaimed reports whether money has been claimed but not yet confirmed.
func (s PaymentStatus) IsClaimed() bool {
	return s == PaymentStatusSubmittedPending || s == PaymentStatusAwaitingReview
}

// IsTerminal reports whether ordinary transitions may leave this status.
// Only AdminOverride can move a VERIFIED payment; nothing leaves CANCELLED.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusVerified || s == PaymentStatusCancelled
}

// NormalizeLegacyStatus maps statuses stored by older clients onto the
// review states. A PENDING row with a receipt was already submitted for review.
func NormalizeLegacyStatus(status PaymentStatus, receiptRef string) PaymentStatus {
	switch status {
	case legacyStatusPending, legacyStatusOverdue:
		if receiptRef != "" {
			return PaymentStatusAwaitingReview
		}
		return PaymentStatusSubmittedPending
	case legacyStatusPartial:
		return PaymentStatusAwaitingReview
	case legacyStatusPaid:
		return PaymentStatusVerified
	}
	return status
}

// Markers embedded in Payment.Notes.
const (
	NoteMarkerSecurityRefund = "[SECURITY_REFUND]"
	NoteMarkerRejected       = "[REJECTED]"
	NoteMarkerGuestNotified  = "[GUEST_NOTIFIED]"
	NoteMarkerAdminOverride  = "[ADMIN_OVERRIDE]"
)

// Payment is a single money movement tied to exactly one booking.
type Payment struct {
	ID            int32         `json:"id"`
	BookingID     int32         `json:"booking_id"`
	Amount        money.Money   `json:"amount"`
	Type          PaymentType   `json:"type"`
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	BillingPeriod *Period       `json:"billing_period"`
	ReceiptRef    string        `json:"receipt_ref"`
	Notes         string        `json:"notes"`
	Date          time.Time     `json:"date"`
	CreatedBy     *int32        `json:"created_by"`
	ReviewedBy    *int32        `json:"reviewed_by"`
	ReviewedAt    *time.Time    `json:"reviewed_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Validate checks the invariants every stored payment must hold.
func (p *Payment) Validate() error {
	if !p.Amount.IsPositive() {
		return NewError(ErrInvalidAmount, fmt.Sprintf("payment amount must be positive, got %d", p.Amount))
	}
	if !p.Type.IsValid() {
		return NewError(ErrValidation, fmt.Sprintf("unknown payment type %q", p.Type))
	}
	if p.Method != "" && !p.Method.IsValid() {
		return NewError(ErrValidation, fmt.Sprintf("unknown payment method %q", p.Method))
	}
	if p.Type == PaymentTypeRent && (p.BillingPeriod == nil || p.BillingPeriod.IsZero()) {
		return NewError(ErrValidation, "rent payments require a billing period")
	}
	return nil
}

// IsRentFor reports whether this is the rent due of the given period.
func (p *Payment) IsRentFor(period Period) bool {
	return p.Type == PaymentTypeRent && p.BillingPeriod != nil && p.BillingPeriod.Equal(period)
}

// HasMarker reports whether notes carry the given marker.
func (p *Payment) HasMarker(marker string) bool {
	return strings.Contains(p.Notes, marker)
}

// AppendNote adds a line to the notes, keeping earlier history.
func AppendNote(notes, line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return notes
	}
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

// PaymentFilter narrows payment listings. Zero fields are ignored.
type PaymentFilter struct {
	BookingID int32
	Statuses  []PaymentStatus
	Types     []PaymentType
	Period    *Period
	Limit     int32
	Offset    int32
}
