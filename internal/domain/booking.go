package domain

import (
	"fmt"
	"time"

	"dorm-ledger-service/internal/money"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusCheckedIn  BookingStatus = "CHECKED_IN"
	BookingStatusCheckedOut BookingStatus = "CHECKED_OUT"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
)

// Booking is a resident's contracted stay in a room. The ledger only reads it.
type Booking struct {
	ID              int32         `json:"id"`
	ResidentID      int32         `json:"resident_id"`
	RoomID          int32         `json:"room_id"`
	CheckIn         time.Time     `json:"check_in"`
	CheckOut        *time.Time    `json:"check_out"`
	MonthlyRent     money.Money   `json:"monthly_rent"`
	SecurityDeposit money.Money   `json:"security_deposit"`
	TotalAmount     money.Money   `json:"total_amount"` // monthly rent x planned months, fixed at creation
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsActive reports whether the resident is currently checked in.
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusCheckedIn
}

// TotalDue is the contractual total: rent obligations plus the deposit.
func (b *Booking) TotalDue() money.Money {
	return b.TotalAmount.Add(b.SecurityDeposit)
}

func (b *Booking) Validate() error {
	if b.TotalAmount.IsNegative() {
		return NewError(ErrValidation, fmt.Sprintf("booking %d: total amount must not be negative", b.ID))
	}
	if b.SecurityDeposit.IsNegative() {
		return NewError(ErrValidation, fmt.Sprintf("booking %d: security deposit must not be negative", b.ID))
	}
	if b.MonthlyRent.IsNegative() {
		return NewError(ErrValidation, fmt.Sprintf("booking %d: monthly rent must not be negative", b.ID))
	}
	return nil
}
