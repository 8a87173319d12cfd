package service

import (
	"context"
	"fmt"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/metrics"
	"dorm-ledger-service/internal/repository"
)

type duesService struct {
	bookingRepo repository.BookingRepository
	paymentRepo repository.PaymentRepository
	metrics     *metrics.Metrics
}

func NewDuesService(bookingRepo repository.BookingRepository, paymentRepo repository.PaymentRepository, m *metrics.Metrics) DuesService {
	return &duesService{bookingRepo: bookingRepo, paymentRepo: paymentRepo, metrics: m}
}

func (s *duesService) GenerateMonthlyDues(ctx context.Context, period domain.Period) (*domain.DuesResult, error) {
	logger.EnterMethod("duesService.GenerateMonthlyDues", "period", period)

	if period.IsZero() {
		err := domain.NewError(domain.ErrValidation, "billing period is required")
		logger.ExitMethodWithError("duesService.GenerateMonthlyDues", err)
		return nil, err
	}

	bookings, err := s.bookingRepo.ListByStatus(ctx, []domain.BookingStatus{domain.BookingStatusCheckedIn})
	if err != nil {
		logger.ExitMethodWithError("duesService.GenerateMonthlyDues", err, "period", period)
		return nil, err
	}

	result := &domain.DuesResult{Period: period}
	defer func() { s.metrics.DuesGenerated(result.Created, result.Skipped) }()

	for _, b := range bookings {
		// each insert commits on its own, so stopping here leaves a
		// consistent prefix that a rerun completes
		if err := ctx.Err(); err != nil {
			logger.ExitMethodWithError("duesService.GenerateMonthlyDues", err, "period", period, "created", result.Created)
			return result, err
		}
		if !b.MonthlyRent.IsPositive() {
			logger.Debug("Skipping booking without monthly rent", "bookingID", b.ID)
			result.Skipped++
			continue
		}

		p := period
		due := &domain.Payment{
			BookingID:     b.ID,
			Amount:        b.MonthlyRent,
			Type:          domain.PaymentTypeRent,
			Status:        domain.PaymentStatusSubmittedPending,
			BillingPeriod: &p,
			Notes:         fmt.Sprintf("Monthly rent for %s", period),
			Date:          period.FirstDay(),
		}
		created, err := s.paymentRepo.CreateDueIfAbsent(ctx, due)
		if err != nil {
			logger.ExitMethodWithError("duesService.GenerateMonthlyDues", err, "period", period, "bookingID", b.ID)
			return result, err
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	logger.Info("Monthly dues generated", "period", period, "created", result.Created, "skipped", result.Skipped)
	logger.ExitMethod("duesService.GenerateMonthlyDues", "period", period)
	return result, nil
}
