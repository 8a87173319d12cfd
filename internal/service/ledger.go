package service

import (
	"context"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/ledger"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/repository"
)

type ledgerService struct {
	bookingRepo repository.BookingRepository
	paymentRepo repository.PaymentRepository
	refundRepo  repository.RefundRepository
}

func NewLedgerService(bookingRepo repository.BookingRepository, paymentRepo repository.PaymentRepository, refundRepo repository.RefundRepository) LedgerService {
	return &ledgerService{bookingRepo: bookingRepo, paymentRepo: paymentRepo, refundRepo: refundRepo}
}

func (s *ledgerService) GetLedgerSnapshot(ctx context.Context, actor domain.Actor, bookingID int32) (*domain.LedgerSnapshot, error) {
	logger.EnterMethod("ledgerService.GetLedgerSnapshot", "bookingID", bookingID, "actor", actor.UserID)

	booking, err := loadAccessibleBooking(ctx, s.bookingRepo, actor, bookingID)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.GetLedgerSnapshot", err, "bookingID", bookingID)
		return nil, err
	}
	payments, err := s.paymentRepo.ListByBooking(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.GetLedgerSnapshot", err, "bookingID", bookingID)
		return nil, err
	}
	refunds, err := s.refundRepo.ListByBooking(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.GetLedgerSnapshot", err, "bookingID", bookingID)
		return nil, err
	}

	snap := ledger.Compute(booking, payments, refunds)
	logger.ExitMethod("ledgerService.GetLedgerSnapshot", "bookingID", bookingID, "outstanding", snap.OutstandingBalance)
	return &snap, nil
}

// loadAccessibleBooking hides bookings the actor may not see behind ErrForbidden.
func loadAccessibleBooking(ctx context.Context, repo repository.BookingRepository, actor domain.Actor, bookingID int32) (*domain.Booking, error) {
	booking, err := repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessBooking(booking) {
		return nil, domain.ErrForbidden
	}
	return booking, nil
}
