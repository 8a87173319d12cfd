package service

import (
	"context"
	"fmt"
	"strings"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/ledger"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/metrics"
	"dorm-ledger-service/internal/money"
	"dorm-ledger-service/internal/repository"
)

type refundService struct {
	bookingRepo repository.BookingRepository
	paymentRepo repository.PaymentRepository
	refundRepo  repository.RefundRepository
	notifier    NotificationService
	metrics     *metrics.Metrics
}

func NewRefundService(
	bookingRepo repository.BookingRepository,
	paymentRepo repository.PaymentRepository,
	refundRepo repository.RefundRepository,
	notifier NotificationService,
	m *metrics.Metrics,
) RefundService {
	return &refundService{
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		notifier:    notifier,
		metrics:     m,
	}
}

// depositGuard rejects amount when it exceeds what is left of the deposit.
// It runs with the booking row locked, so concurrent requests see each
// other's completed refunds.
func depositGuard(amount money.Money) repository.RefundGuard {
	return func(booking *domain.Booking, completed money.Money) error {
		available := ledger.AvailableDeposit(booking.SecurityDeposit, completed)
		if amount.GreaterThan(available) {
			return domain.NewError(domain.ErrInsufficientDeposit,
				fmt.Sprintf("refund of %s exceeds available deposit %s on booking %d", amount, available, booking.ID))
		}
		return nil
	}
}

func (s *refundService) RequestRefund(ctx context.Context, actor domain.Actor, in RefundInput) (*domain.RefundRequest, error) {
	logger.EnterMethod("refundService.RequestRefund", "bookingID", in.BookingID, "paymentID", in.PaymentID, "amount", in.Amount)

	if !in.Amount.IsPositive() {
		err := domain.NewError(domain.ErrInvalidAmount, fmt.Sprintf("refund amount must be positive, got %s", in.Amount))
		logger.ExitMethodWithError("refundService.RequestRefund", err, "bookingID", in.BookingID)
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		err := domain.NewError(domain.ErrValidation, "a refund reason is required")
		logger.ExitMethodWithError("refundService.RequestRefund", err, "bookingID", in.BookingID)
		return nil, err
	}

	if _, err := loadAccessibleBooking(ctx, s.bookingRepo, actor, in.BookingID); err != nil {
		logger.ExitMethodWithError("refundService.RequestRefund", err, "bookingID", in.BookingID)
		return nil, err
	}

	payment, err := s.paymentRepo.GetByID(ctx, in.PaymentID)
	if err != nil {
		logger.ExitMethodWithError("refundService.RequestRefund", err, "paymentID", in.PaymentID)
		return nil, err
	}
	if payment.BookingID != in.BookingID || payment.Type != domain.PaymentTypeSecurity {
		err := domain.NewError(domain.ErrNotFound,
			fmt.Sprintf("security payment %d not found on booking %d", in.PaymentID, in.BookingID))
		logger.ExitMethodWithError("refundService.RequestRefund", err, "paymentID", in.PaymentID)
		return nil, err
	}

	rr := &domain.RefundRequest{
		PaymentID:   in.PaymentID,
		BookingID:   in.BookingID,
		Amount:      in.Amount,
		Reason:      reason,
		Status:      domain.RefundStatusPending,
		RequestedBy: actor.ActorUserID(),
	}
	if err := s.refundRepo.CreateGuarded(ctx, rr, depositGuard(in.Amount)); err != nil {
		logger.ExitMethodWithError("refundService.RequestRefund", err, "bookingID", in.BookingID)
		return nil, err
	}
	s.metrics.RefundRequest(string(rr.Status))

	logger.ExitMethod("refundService.RequestRefund", "refundID", rr.ID)
	return rr, nil
}

func (s *refundService) ResolveRefund(ctx context.Context, actor domain.Actor, refundID int32, decision domain.RefundStatus, notes string) (*domain.RefundRequest, error) {
	logger.EnterMethod("refundService.ResolveRefund", "refundID", refundID, "decision", decision, "actor", actor.UserID)

	if !actor.IsOperator() {
		err := domain.NewError(domain.ErrForbidden, "only wardens can resolve refund requests")
		logger.ExitMethodWithError("refundService.ResolveRefund", err, "refundID", refundID)
		return nil, err
	}
	if !decision.IsDecision() {
		err := domain.NewError(domain.ErrValidation, fmt.Sprintf("decision must be COMPLETED or REJECTED, got %q", decision))
		logger.ExitMethodWithError("refundService.ResolveRefund", err, "refundID", refundID)
		return nil, err
	}

	current, err := s.refundRepo.GetByID(ctx, refundID)
	if err != nil {
		logger.ExitMethodWithError("refundService.ResolveRefund", err, "refundID", refundID)
		return nil, err
	}

	rr := &domain.RefundRequest{
		ID:         refundID,
		Status:     decision,
		Notes:      strings.TrimSpace(notes),
		ResolvedBy: actor.ActorUserID(),
	}
	if err := s.refundRepo.ResolveGuarded(ctx, rr, depositGuard(current.Amount)); err != nil {
		logger.ExitMethodWithError("refundService.ResolveRefund", err, "refundID", refundID)
		return nil, err
	}
	rr.PaymentID = current.PaymentID
	rr.Reason = current.Reason
	rr.RequestedBy = current.RequestedBy
	rr.CreatedAt = current.CreatedAt
	s.metrics.RefundRequest(string(rr.Status))

	if booking, err := s.bookingRepo.GetByID(ctx, rr.BookingID); err == nil {
		s.notifier.NotifyRefundResolved(ctx, booking, rr)
	} else {
		logger.Warn("Refund resolved but booking lookup for notification failed", "refundID", rr.ID, "error", err)
	}

	logger.ExitMethod("refundService.ResolveRefund", "refundID", refundID, "status", rr.Status)
	return rr, nil
}

func (s *refundService) ListRefunds(ctx context.Context, actor domain.Actor, bookingID int32) ([]domain.RefundRequest, error) {
	if _, err := loadAccessibleBooking(ctx, s.bookingRepo, actor, bookingID); err != nil {
		return nil, err
	}
	return s.refundRepo.ListByBooking(ctx, bookingID)
}
