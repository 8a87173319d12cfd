package repository

import (
	"context"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/money"
)

type BookingRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Booking, error)
	ListByStatus(ctx context.Context, statuses []domain.BookingStatus) ([]domain.Booking, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id int32) (*domain.Payment, error)
	ListByBooking(ctx context.Context, bookingID int32) ([]domain.Payment, error)
	ListByBookings(ctx context.Context, bookingIDs []int32) ([]domain.Payment, error)
	List(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error)

	// UpdateIfStatus writes status, amount, method, receipt, notes and review
	// columns only while the stored status is one of expected. It reports
	// false when another writer moved the payment first.
	UpdateIfStatus(ctx context.Context, payment *domain.Payment, expected []domain.PaymentStatus) (bool, error)

	// CreateDueIfAbsent inserts a RENT due unless one already exists for the
	// same booking and billing period. It reports whether a row was created.
	CreateDueIfAbsent(ctx context.Context, payment *domain.Payment) (bool, error)

	Delete(ctx context.Context, id int32) error
}

// RefundGuard runs inside the refund transaction with the booking row locked
// and the sum of its completed refunds. Returning an error aborts the write.
type RefundGuard func(booking *domain.Booking, completedRefunds money.Money) error

type RefundRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.RefundRequest, error)
	ListByBooking(ctx context.Context, bookingID int32) ([]domain.RefundRequest, error)

	// CreateGuarded inserts a PENDING request after guard accepts it.
	CreateGuarded(ctx context.Context, refund *domain.RefundRequest, guard RefundGuard) error

	// ResolveGuarded moves a PENDING request to its terminal status. The
	// guard only runs for completions. Already-resolved requests fail with
	// domain.ErrInvalidTransition.
	ResolveGuarded(ctx context.Context, refund *domain.RefundRequest, guard RefundGuard) error
}

type PaymentActionRepository interface {
	Create(ctx context.Context, action *domain.PaymentAction) error
	ListByPayment(ctx context.Context, paymentID int32) ([]domain.PaymentAction, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int32) error
}
