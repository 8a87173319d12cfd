package service

import (
	"context"
	"fmt"
	"time"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/ledger"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/money"
	"dorm-ledger-service/internal/repository"
)

const (
	MinDueDay = 1
	MaxDueDay = 28
)

type delinquencyService struct {
	bookingRepo   repository.BookingRepository
	paymentRepo   repository.PaymentRepository
	dueDay        int
	lateFeePerDay money.Money
	now           func() time.Time
}

func NewDelinquencyService(bookingRepo repository.BookingRepository, paymentRepo repository.PaymentRepository, dueDay int, lateFeePerDay money.Money) DelinquencyService {
	return &delinquencyService{
		bookingRepo:   bookingRepo,
		paymentRepo:   paymentRepo,
		dueDay:        dueDay,
		lateFeePerDay: lateFeePerDay,
		now:           time.Now,
	}
}

func (s *delinquencyService) ComputeDefaulters(ctx context.Context, period domain.Period, dueDay int, lateFeePerDay money.Money) ([]domain.Defaulter, error) {
	logger.EnterMethod("delinquencyService.ComputeDefaulters", "period", period, "dueDay", dueDay, "lateFeePerDay", lateFeePerDay)

	if dueDay == 0 {
		dueDay = s.dueDay
	}
	if lateFeePerDay.IsNegative() {
		lateFeePerDay = s.lateFeePerDay
	}
	if dueDay < MinDueDay || dueDay > MaxDueDay {
		err := domain.NewError(domain.ErrValidation, fmt.Sprintf("due day must be between %d and %d, got %d", MinDueDay, MaxDueDay, dueDay))
		logger.ExitMethodWithError("delinquencyService.ComputeDefaulters", err)
		return nil, err
	}
	if period.IsZero() {
		err := domain.NewError(domain.ErrValidation, "billing period is required")
		logger.ExitMethodWithError("delinquencyService.ComputeDefaulters", err)
		return nil, err
	}

	now := s.now().UTC()
	defaulters := []domain.Defaulter{}
	if ledger.IsFuture(period, now) {
		logger.ExitMethod("delinquencyService.ComputeDefaulters", "period", period, "count", 0)
		return defaulters, nil
	}

	bookings, err := s.bookingRepo.ListByStatus(ctx, []domain.BookingStatus{domain.BookingStatusCheckedIn})
	if err != nil {
		logger.ExitMethodWithError("delinquencyService.ComputeDefaulters", err, "period", period)
		return nil, err
	}
	if len(bookings) == 0 {
		logger.ExitMethod("delinquencyService.ComputeDefaulters", "period", period, "count", 0)
		return defaulters, nil
	}

	ids := make([]int32, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	payments, err := s.paymentRepo.ListByBookings(ctx, ids)
	if err != nil {
		logger.ExitMethodWithError("delinquencyService.ComputeDefaulters", err, "period", period)
		return nil, err
	}
	byBooking := make(map[int32][]domain.Payment, len(bookings))
	for _, p := range payments {
		byBooking[p.BookingID] = append(byBooking[p.BookingID], p)
	}

	params := ledger.DefaulterParams{Period: period, DueDay: dueDay, LateFeePerDay: lateFeePerDay, Now: now}
	for _, b := range bookings {
		if err := ctx.Err(); err != nil {
			logger.ExitMethodWithError("delinquencyService.ComputeDefaulters", err, "period", period)
			return nil, err
		}
		if d, ok := ledger.Defaulter(b, byBooking[b.ID], params); ok {
			defaulters = append(defaulters, d)
		}
	}
	ledger.SortDefaulters(defaulters)

	logger.ExitMethod("delinquencyService.ComputeDefaulters", "period", period, "count", len(defaulters))
	return defaulters, nil
}
