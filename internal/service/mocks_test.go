package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/repository"
)

type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) ListByStatus(ctx context.Context, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockPaymentRepo struct {
	mock.Mock
}

func (m *MockPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}
func (m *MockPaymentRepo) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// copy so the service cannot mutate the fixture between calls
	p := *args.Get(0).(*domain.Payment)
	return &p, args.Error(1)
}
func (m *MockPaymentRepo) ListByBooking(ctx context.Context, bookingID int32) ([]domain.Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Payment), args.Error(1)
}
func (m *MockPaymentRepo) ListByBookings(ctx context.Context, ids []int32) ([]domain.Payment, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Payment), args.Error(1)
}
func (m *MockPaymentRepo) List(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Payment), args.Error(1)
}
func (m *MockPaymentRepo) UpdateIfStatus(ctx context.Context, p *domain.Payment, expected []domain.PaymentStatus) (bool, error) {
	args := m.Called(ctx, p, expected)
	return args.Bool(0), args.Error(1)
}
func (m *MockPaymentRepo) CreateDueIfAbsent(ctx context.Context, p *domain.Payment) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}
func (m *MockPaymentRepo) Delete(ctx context.Context, id int32) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockRefundRepo struct {
	mock.Mock
}

func (m *MockRefundRepo) GetByID(ctx context.Context, id int32) (*domain.RefundRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefundRequest), args.Error(1)
}
func (m *MockRefundRepo) ListByBooking(ctx context.Context, bookingID int32) ([]domain.RefundRequest, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RefundRequest), args.Error(1)
}
func (m *MockRefundRepo) CreateGuarded(ctx context.Context, rr *domain.RefundRequest, guard repository.RefundGuard) error {
	args := m.Called(ctx, rr, guard)
	return args.Error(0)
}
func (m *MockRefundRepo) ResolveGuarded(ctx context.Context, rr *domain.RefundRequest, guard repository.RefundGuard) error {
	args := m.Called(ctx, rr, guard)
	return args.Error(0)
}

type MockActionRepo struct {
	mock.Mock
}

func (m *MockActionRepo) Create(ctx context.Context, a *domain.PaymentAction) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}
func (m *MockActionRepo) ListByPayment(ctx context.Context, paymentID int32) ([]domain.PaymentAction, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PaymentAction), args.Error(1)
}

type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
func (m *MockNotificationRepo) List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Notification), args.Get(1).(int32), args.Error(2)
}
func (m *MockNotificationRepo) MarkAsRead(ctx context.Context, id, userID int32) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]domain.Notification), args.Get(1).(int32), args.Error(2)
}
func (m *MockNotifier) MarkAsRead(ctx context.Context, userID, notificationID int32) error {
	args := m.Called(ctx, userID, notificationID)
	return args.Error(0)
}
func (m *MockNotifier) NotifyPaymentAwaitingReview(ctx context.Context, booking *domain.Booking, p *domain.Payment) {
	m.Called(ctx, booking, p)
}
func (m *MockNotifier) NotifyPaymentReviewed(ctx context.Context, booking *domain.Booking, p *domain.Payment) {
	m.Called(ctx, booking, p)
}
func (m *MockNotifier) NotifyRefundResolved(ctx context.Context, booking *domain.Booking, rr *domain.RefundRequest) {
	m.Called(ctx, booking, rr)
}

type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendPaymentAwaitingReview(ctx context.Context, to []string, booking *domain.Booking, p *domain.Payment) error {
	args := m.Called(ctx, to, booking, p)
	return args.Error(0)
}
func (m *MockEmailService) SendDefaulterDigest(ctx context.Context, to []string, period domain.Period, defaulters []domain.Defaulter) error {
	args := m.Called(ctx, to, period, defaulters)
	return args.Error(0)
}

// quietNotifier accepts every notification without recording it.
type quietNotifier struct{}

func (quietNotifier) GetNotifications(context.Context, int32, int32, int32) ([]domain.Notification, int32, error) {
	return nil, 0, nil
}
func (quietNotifier) MarkAsRead(context.Context, int32, int32) error { return nil }
func (quietNotifier) NotifyPaymentAwaitingReview(context.Context, *domain.Booking, *domain.Payment) {
}
func (quietNotifier) NotifyPaymentReviewed(context.Context, *domain.Booking, *domain.Payment) {}
func (quietNotifier) NotifyRefundResolved(context.Context, *domain.Booking, *domain.RefundRequest) {
}
