package service

import (
	"context"
	"fmt"
	"math"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/repository"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

type notificationService struct {
	noteRepo      repository.NotificationRepository
	emailSvc      EmailService
	wardenUserIDs []int32
	wardenEmails  []string
}

func NewNotificationService(noteRepo repository.NotificationRepository, emailSvc EmailService, wardenUserIDs []int32, wardenEmails []string) NotificationService {
	return &notificationService{
		noteRepo:      noteRepo,
		emailSvc:      emailSvc,
		wardenUserIDs: wardenUserIDs,
		wardenEmails:  wardenEmails,
	}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultNotificationPageSize
	}
	if pageSize > maxNotificationPageSize {
		pageSize = maxNotificationPageSize
	}
	offset := int64(page-1) * int64(pageSize)
	if offset > math.MaxInt32 {
		return nil, 0, domain.NewError(domain.ErrValidation, fmt.Sprintf("page %d is out of range", page))
	}
	return s.noteRepo.List(ctx, userID, pageSize, int32(offset))
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, notificationID int32) error {
	return s.noteRepo.MarkAsRead(ctx, notificationID, userID)
}

func (s *notificationService) create(ctx context.Context, userID int32, bookingID int32, title, message string, attrs map[string]string) {
	if userID == 0 {
		return
	}
	id := bookingID
	n := &domain.Notification{
		UserID:     userID,
		BookingID:  &id,
		Title:      title,
		Message:    message,
		Attributes: attrs,
	}
	if err := s.noteRepo.Create(ctx, n); err != nil {
		logger.Warn("Failed to store notification", "userID", userID, "title", title, "error", err)
	}
}

func (s *notificationService) NotifyPaymentAwaitingReview(ctx context.Context, booking *domain.Booking, payment *domain.Payment) {
	attrs := map[string]string{
		"type":       "PAYMENT_AWAITING_REVIEW",
		"payment_id": fmt.Sprintf("%d", payment.ID),
	}
	msg := fmt.Sprintf("Payment #%d of %s for booking #%d is waiting for review", payment.ID, payment.Amount, booking.ID)
	for _, uid := range s.wardenUserIDs {
		s.create(ctx, uid, booking.ID, "Payment Awaiting Review", msg, attrs)
	}
	if s.emailSvc != nil {
		if err := s.emailSvc.SendPaymentAwaitingReview(ctx, s.wardenEmails, booking, payment); err != nil {
			logger.Warn("Failed to email wardens", "paymentID", payment.ID, "error", err)
		}
	}
}

func (s *notificationService) NotifyPaymentReviewed(ctx context.Context, booking *domain.Booking, payment *domain.Payment) {
	title := "Payment Verified"
	msg := fmt.Sprintf("Your payment #%d of %s was verified", payment.ID, payment.Amount)
	if payment.Status == domain.PaymentStatusRejected {
		title = "Payment Rejected"
		msg = fmt.Sprintf("Your payment #%d of %s was rejected. Attach new proof to resubmit.", payment.ID, payment.Amount)
	}
	s.create(ctx, booking.ResidentID, booking.ID, title, msg, map[string]string{
		"type":       "PAYMENT_" + string(payment.Status),
		"payment_id": fmt.Sprintf("%d", payment.ID),
	})
}

func (s *notificationService) NotifyRefundResolved(ctx context.Context, booking *domain.Booking, refund *domain.RefundRequest) {
	s.create(ctx, booking.ResidentID, booking.ID,
		"Deposit Refund "+string(refund.Status),
		fmt.Sprintf("Your refund request #%d for %s is %s", refund.ID, refund.Amount, refund.Status),
		map[string]string{
			"type":      "REFUND_" + string(refund.Status),
			"refund_id": fmt.Sprintf("%d", refund.ID),
		})
}
