package service

import (
	"context"
	"io"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/money"
)

type LedgerService interface {
	GetLedgerSnapshot(ctx context.Context, actor domain.Actor, bookingID int32) (*domain.LedgerSnapshot, error)
}

// CreatePaymentInput is a new claim of money against a booking.
type CreatePaymentInput struct {
	BookingID     int32
	Amount        money.Money
	Type          domain.PaymentType
	Method        domain.PaymentMethod
	BillingPeriod *domain.Period
	Notes         string
}

// OverrideInput carries an administrative correction. Zero fields are left unchanged.
type OverrideInput struct {
	Status domain.PaymentStatus
	Amount money.Money
	Method domain.PaymentMethod
	Notes  string
}

type PaymentService interface {
	CreatePayment(ctx context.Context, actor domain.Actor, in CreatePaymentInput) (*domain.Payment, error)
	AttachProof(ctx context.Context, actor domain.Actor, paymentID int32, receiptRef string, method domain.PaymentMethod, notes string) (*domain.Payment, error)
	Approve(ctx context.Context, actor domain.Actor, paymentID int32) (*domain.Payment, error)
	Reject(ctx context.Context, actor domain.Actor, paymentID int32, reason string) (*domain.Payment, error)
	Cancel(ctx context.Context, actor domain.Actor, paymentID int32) (*domain.Payment, error)
	AdminOverride(ctx context.Context, actor domain.Actor, paymentID int32, in OverrideInput) (*domain.Payment, error)
	DeletePayment(ctx context.Context, actor domain.Actor, paymentID int32) error
	GetPayment(ctx context.Context, actor domain.Actor, paymentID int32) (*domain.Payment, error)
	ListPayments(ctx context.Context, actor domain.Actor, filter domain.PaymentFilter) ([]domain.Payment, error)
	ListActions(ctx context.Context, actor domain.Actor, paymentID int32) ([]domain.PaymentAction, error)
}

type RefundInput struct {
	BookingID int32
	PaymentID int32
	Amount    money.Money
	Reason    string
}

type RefundService interface {
	RequestRefund(ctx context.Context, actor domain.Actor, in RefundInput) (*domain.RefundRequest, error)
	ResolveRefund(ctx context.Context, actor domain.Actor, refundID int32, decision domain.RefundStatus, notes string) (*domain.RefundRequest, error)
	ListRefunds(ctx context.Context, actor domain.Actor, bookingID int32) ([]domain.RefundRequest, error)
}

type DuesService interface {
	// GenerateMonthlyDues creates one RENT due per checked-in booking for
	// period. Running it again for the same period creates nothing.
	GenerateMonthlyDues(ctx context.Context, period domain.Period) (*domain.DuesResult, error)
}

type DelinquencyService interface {
	// ComputeDefaulters is read-only. dueDay 0 and lateFeePerDay < 0 select
	// the configured defaults.
	ComputeDefaulters(ctx context.Context, period domain.Period, dueDay int, lateFeePerDay money.Money) ([]domain.Defaulter, error)
}

// NotificationService persists in-app notifications. The Notify* methods are
// best-effort: failures are logged and never surface to the caller.
type NotificationService interface {
	GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID int32) error

	NotifyPaymentAwaitingReview(ctx context.Context, booking *domain.Booking, payment *domain.Payment)
	NotifyPaymentReviewed(ctx context.Context, booking *domain.Booking, payment *domain.Payment)
	NotifyRefundResolved(ctx context.Context, booking *domain.Booking, refund *domain.RefundRequest)
}

type EmailService interface {
	SendPaymentAwaitingReview(ctx context.Context, to []string, booking *domain.Booking, payment *domain.Payment) error
	SendDefaulterDigest(ctx context.Context, to []string, period domain.Period, defaulters []domain.Defaulter) error
}

// ReceiptService stores proof-of-payment files for bookings the actor can access.
type ReceiptService interface {
	UploadReceipt(ctx context.Context, actor domain.Actor, bookingID int32, filename, contentType string, r io.Reader) (string, error)
	OpenReceipt(ctx context.Context, actor domain.Actor, key string) (io.ReadCloser, string, error)
}
