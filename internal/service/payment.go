package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/metrics"
	"dorm-ledger-service/internal/repository"
)

// casAttempts bounds how often a transition re-reads after losing a
// compare-and-swap race before giving up.
const casAttempts = 3

type paymentService struct {
	bookingRepo repository.BookingRepository
	paymentRepo repository.PaymentRepository
	actionRepo  repository.PaymentActionRepository
	notifier    NotificationService
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewPaymentService(
	bookingRepo repository.BookingRepository,
	paymentRepo repository.PaymentRepository,
	actionRepo repository.PaymentActionRepository,
	notifier NotificationService,
	m *metrics.Metrics,
) PaymentService {
	return &paymentService{
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		actionRepo:  actionRepo,
		notifier:    notifier,
		metrics:     m,
		now:         time.Now,
	}
}

func (s *paymentService) CreatePayment(ctx context.Context, actor domain.Actor, in CreatePaymentInput) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.CreatePayment", "bookingID", in.BookingID, "type", in.Type, "amount", in.Amount)

	booking, err := loadAccessibleBooking(ctx, s.bookingRepo, actor, in.BookingID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.CreatePayment", err, "bookingID", in.BookingID)
		return nil, err
	}
	if in.Type == domain.PaymentTypeLateFee && !actor.IsOperator() {
		err := domain.NewError(domain.ErrForbidden, "only wardens can post late fees")
		logger.ExitMethodWithError("paymentService.CreatePayment", err, "bookingID", in.BookingID)
		return nil, err
	}

	p := &domain.Payment{
		BookingID:     booking.ID,
		Amount:        in.Amount,
		Type:          in.Type,
		Method:        in.Method,
		Status:        domain.PaymentStatusSubmittedPending,
		BillingPeriod: in.BillingPeriod,
		Notes:         strings.TrimSpace(in.Notes),
		Date:          s.now(),
		CreatedBy:     actor.ActorUserID(),
	}
	if in.Type != domain.PaymentTypeRent {
		p.BillingPeriod = nil
	}
	if err := p.Validate(); err != nil {
		logger.ExitMethodWithError("paymentService.CreatePayment", err, "bookingID", in.BookingID)
		return nil, err
	}

	if err := s.paymentRepo.Create(ctx, p); err != nil {
		logger.ExitMethodWithError("paymentService.CreatePayment", err, "bookingID", in.BookingID)
		return nil, err
	}

	s.recordAction(ctx, actor, p, domain.PaymentActionCreated, "", p.Status, map[string]any{
		"amount": p.Amount,
		"type":   p.Type,
	}, "")

	logger.ExitMethod("paymentService.CreatePayment", "paymentID", p.ID)
	return p, nil
}

func (s *paymentService) AttachProof(ctx context.Context, actor domain.Actor, paymentID int32, receiptRef string, method domain.PaymentMethod, notes string) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.AttachProof", "paymentID", paymentID, "actor", actor.UserID)

	receiptRef = strings.TrimSpace(receiptRef)
	if receiptRef == "" {
		err := domain.NewError(domain.ErrValidation, "receipt reference is required")
		logger.ExitMethodWithError("paymentService.AttachProof", err, "paymentID", paymentID)
		return nil, err
	}
	if method != "" && !method.IsValid() {
		err := domain.NewError(domain.ErrValidation, fmt.Sprintf("unknown payment method %q", method))
		logger.ExitMethodWithError("paymentService.AttachProof", err, "paymentID", paymentID)
		return nil, err
	}

	var previous domain.PaymentStatus
	p, booking, changed, err := s.transition(ctx, actor, paymentID, domain.EventAttachProof, func(p *domain.Payment) {
		previous = p.Status
		p.ReceiptRef = receiptRef
		if method != "" {
			p.Method = method
		}
		p.Notes = domain.AppendNote(p.Notes, notes)
		if !p.HasMarker(domain.NoteMarkerGuestNotified) {
			p.Notes = domain.AppendNote(p.Notes, domain.NoteMarkerGuestNotified)
		}
		p.ReviewedBy = nil
		p.ReviewedAt = nil
	})
	if err != nil {
		logger.ExitMethodWithError("paymentService.AttachProof", err, "paymentID", paymentID)
		return nil, err
	}

	if changed {
		s.recordAction(ctx, actor, p, domain.PaymentActionProofAttached, previous, p.Status, map[string]any{
			"receipt_ref": receiptRef,
			"method":      p.Method,
		}, notes)
		s.notifier.NotifyPaymentAwaitingReview(ctx, booking, p)
	}

	logger.ExitMethod("paymentService.AttachProof", "paymentID", paymentID, "changed", changed)
	return p, nil
}

func (s *paymentService) Approve(ctx context.Context, actor domain.Actor, paymentID int32) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.Approve", "paymentID", paymentID, "actor", actor.UserID)

	if !actor.IsOperator() {
		err := domain.NewError(domain.ErrForbidden, "only wardens can approve payments")
		logger.ExitMethodWithError("paymentService.Approve", err, "paymentID", paymentID)
		return nil, err
	}

	now := s.now()
	p, booking, _, err := s.transition(ctx, actor, paymentID, domain.EventApprove, func(p *domain.Payment) {
		p.ReviewedAt = &now
		p.ReviewedBy = actor.ActorUserID()
	})
	if err != nil {
		logger.ExitMethodWithError("paymentService.Approve", err, "paymentID", paymentID)
		return nil, err
	}

	s.recordAction(ctx, actor, p, domain.PaymentActionApproved, domain.PaymentStatusAwaitingReview, p.Status, nil, "")
	s.notifier.NotifyPaymentReviewed(ctx, booking, p)

	logger.ExitMethod("paymentService.Approve", "paymentID", paymentID)
	return p, nil
}

func (s *paymentService) Reject(ctx context.Context, actor domain.Actor, paymentID int32, reason string) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.Reject", "paymentID", paymentID, "actor", actor.UserID)

	if !actor.IsOperator() {
		err := domain.NewError(domain.ErrForbidden, "only wardens can reject payments")
		logger.ExitMethodWithError("paymentService.Reject", err, "paymentID", paymentID)
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		err := domain.NewError(domain.ErrValidation, "a rejection reason is required")
		logger.ExitMethodWithError("paymentService.Reject", err, "paymentID", paymentID)
		return nil, err
	}

	now := s.now()
	p, booking, _, err := s.transition(ctx, actor, paymentID, domain.EventReject, func(p *domain.Payment) {
		p.Notes = domain.AppendNote(p.Notes, domain.NoteMarkerRejected+" "+reason)
		p.ReviewedAt = &now
		p.ReviewedBy = actor.ActorUserID()
	})
	if err != nil {
		logger.ExitMethodWithError("paymentService.Reject", err, "paymentID", paymentID)
		return nil, err
	}

	s.recordAction(ctx, actor, p, domain.PaymentActionRejected, domain.PaymentStatusAwaitingReview, p.Status, map[string]any{
		"reason": reason,
	}, reason)
	s.notifier.NotifyPaymentReviewed(ctx, booking, p)

	logger.ExitMethod("paymentService.Reject", "paymentID", paymentID)
	return p, nil
}

func (s *paymentService) Cancel(ctx context.Context, actor domain.Actor, paymentID int32) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.Cancel", "paymentID", paymentID, "actor", actor.UserID)

	var previous domain.PaymentStatus
	p, _, changed, err := s.transition(ctx, actor, paymentID, domain.EventCancel, func(p *domain.Payment) {
		previous = p.Status
	})
	if err != nil {
		logger.ExitMethodWithError("paymentService.Cancel", err, "paymentID", paymentID)
		return nil, err
	}
	if changed {
		s.recordAction(ctx, actor, p, domain.PaymentActionCancelled, previous, p.Status, nil, "")
	}

	logger.ExitMethod("paymentService.Cancel", "paymentID", paymentID, "changed", changed)
	return p, nil
}

// transition applies event to a payment with a compare-and-swap on the status
// that was read. A lost race re-reads and re-evaluates, so a concurrent
// identical idempotent event reports success and a conflicting one reports
// ErrInvalidTransition. mutate may only touch non-identity fields.
func (s *paymentService) transition(
	ctx context.Context,
	actor domain.Actor,
	paymentID int32,
	event domain.PaymentEvent,
	mutate func(p *domain.Payment),
) (*domain.Payment, *domain.Booking, bool, error) {
	var booking *domain.Booking
	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := s.paymentRepo.GetByID(ctx, paymentID)
		if err != nil {
			return nil, nil, false, err
		}
		if booking == nil {
			booking, err = loadAccessibleBooking(ctx, s.bookingRepo, actor, current.BookingID)
			if err != nil {
				return nil, nil, false, err
			}
		}

		next, noop, err := domain.NextStatus(current.Status, event)
		if err != nil {
			return nil, nil, false, err
		}
		if noop {
			return current, booking, false, nil
		}

		updated := *current
		mutate(&updated)
		updated.ID = current.ID
		updated.BookingID = current.BookingID
		updated.Type = current.Type
		updated.Status = next

		ok, err := s.paymentRepo.UpdateIfStatus(ctx, &updated, []domain.PaymentStatus{current.Status})
		if err != nil {
			return nil, nil, false, err
		}
		if ok {
			s.metrics.PaymentTransition(string(current.Status), string(next))
			return &updated, booking, true, nil
		}
		logger.Debug("Payment changed concurrently, re-reading", "paymentID", paymentID, "event", event, "attempt", attempt+1)
	}
	return nil, nil, false, domain.NewError(domain.ErrInvalidTransition,
		fmt.Sprintf("payment %d kept changing concurrently", paymentID))
}

func (s *paymentService) AdminOverride(ctx context.Context, actor domain.Actor, paymentID int32, in OverrideInput) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.AdminOverride", "paymentID", paymentID, "actor", actor.UserID, "status", in.Status)

	if !actor.IsAdmin() {
		err := domain.NewError(domain.ErrForbidden, "only administrators can override payments")
		logger.ExitMethodWithError("paymentService.AdminOverride", err, "paymentID", paymentID)
		return nil, err
	}
	if in.Amount.IsNegative() {
		err := domain.NewError(domain.ErrInvalidAmount, "override amount must be positive")
		logger.ExitMethodWithError("paymentService.AdminOverride", err, "paymentID", paymentID)
		return nil, err
	}
	if in.Method != "" && !in.Method.IsValid() {
		err := domain.NewError(domain.ErrValidation, fmt.Sprintf("unknown payment method %q", in.Method))
		logger.ExitMethodWithError("paymentService.AdminOverride", err, "paymentID", paymentID)
		return nil, err
	}

	current, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.AdminOverride", err, "paymentID", paymentID)
		return nil, err
	}

	next := current.Status
	if in.Status != "" {
		next = in.Status
	}
	if err := domain.CheckOverride(current.Status, next); err != nil {
		logger.ExitMethodWithError("paymentService.AdminOverride", err, "paymentID", paymentID)
		return nil, err
	}

	updated := *current
	updated.Status = next
	if in.Amount.IsPositive() {
		updated.Amount = in.Amount
	}
	if in.Method != "" {
		updated.Method = in.Method
	}
	updated.Notes = domain.AppendNote(updated.Notes, domain.NoteMarkerAdminOverride+" "+strings.TrimSpace(in.Notes))
	if next == domain.PaymentStatusVerified && current.Status != domain.PaymentStatusVerified {
		now := s.now()
		updated.ReviewedAt = &now
		updated.ReviewedBy = actor.ActorUserID()
	}

	ok, err := s.paymentRepo.UpdateIfStatus(ctx, &updated, []domain.PaymentStatus{current.Status})
	if err != nil {
		logger.ExitMethodWithError("paymentService.AdminOverride", err, "paymentID", paymentID)
		return nil, err
	}
	if !ok {
		err := domain.NewError(domain.ErrInvalidTransition,
			fmt.Sprintf("payment %d changed while being overridden; reload and retry", paymentID))
		logger.ExitMethodWithError("paymentService.AdminOverride", err, "paymentID", paymentID)
		return nil, err
	}

	logger.Warn("Payment overridden by administrator",
		"paymentID", paymentID,
		"adminID", actor.UserID,
		"previousStatus", current.Status,
		"newStatus", updated.Status,
		"previousAmount", current.Amount,
		"newAmount", updated.Amount,
	)
	if current.Status != updated.Status {
		s.metrics.PaymentTransition(string(current.Status), string(updated.Status))
	}
	s.recordAction(ctx, actor, &updated, domain.PaymentActionAdminOverride, current.Status, updated.Status, map[string]any{
		"previous_amount": current.Amount,
		"new_amount":      updated.Amount,
		"previous_method": current.Method,
		"new_method":      updated.Method,
	}, in.Notes)

	logger.ExitMethod("paymentService.AdminOverride", "paymentID", paymentID)
	return &updated, nil
}

func (s *paymentService) DeletePayment(ctx context.Context, actor domain.Actor, paymentID int32) error {
	logger.EnterMethod("paymentService.DeletePayment", "paymentID", paymentID, "actor", actor.UserID)

	if !actor.IsAdmin() {
		err := domain.NewError(domain.ErrForbidden, "only administrators can delete payments")
		logger.ExitMethodWithError("paymentService.DeletePayment", err, "paymentID", paymentID)
		return err
	}

	current, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.DeletePayment", err, "paymentID", paymentID)
		return err
	}
	if err := s.paymentRepo.Delete(ctx, paymentID); err != nil {
		logger.ExitMethodWithError("paymentService.DeletePayment", err, "paymentID", paymentID)
		return err
	}

	logger.Warn("Payment deleted by administrator",
		"paymentID", paymentID,
		"adminID", actor.UserID,
		"bookingID", current.BookingID,
		"status", current.Status,
		"amount", current.Amount,
	)
	s.recordAction(ctx, actor, current, domain.PaymentActionDeleted, current.Status, "", map[string]any{
		"deleted": current,
	}, "")

	logger.ExitMethod("paymentService.DeletePayment", "paymentID", paymentID)
	return nil
}

func (s *paymentService) GetPayment(ctx context.Context, actor domain.Actor, paymentID int32) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if _, err := loadAccessibleBooking(ctx, s.bookingRepo, actor, p.BookingID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *paymentService) ListPayments(ctx context.Context, actor domain.Actor, filter domain.PaymentFilter) ([]domain.Payment, error) {
	logger.EnterMethod("paymentService.ListPayments", "bookingID", filter.BookingID, "actor", actor.UserID)

	if !actor.IsOperator() {
		if filter.BookingID == 0 {
			err := domain.NewError(domain.ErrForbidden, "residents must list payments of one of their bookings")
			logger.ExitMethodWithError("paymentService.ListPayments", err)
			return nil, err
		}
		if _, err := loadAccessibleBooking(ctx, s.bookingRepo, actor, filter.BookingID); err != nil {
			logger.ExitMethodWithError("paymentService.ListPayments", err, "bookingID", filter.BookingID)
			return nil, err
		}
	}

	payments, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		logger.ExitMethodWithError("paymentService.ListPayments", err)
		return nil, err
	}
	logger.ExitMethod("paymentService.ListPayments", "count", len(payments))
	return payments, nil
}

func (s *paymentService) ListActions(ctx context.Context, actor domain.Actor, paymentID int32) ([]domain.PaymentAction, error) {
	if !actor.IsOperator() {
		return nil, domain.NewError(domain.ErrForbidden, "only wardens can read the payment audit trail")
	}
	return s.actionRepo.ListByPayment(ctx, paymentID)
}

// recordAction writes the audit row after the state change committed. A
// failure here is logged loudly but does not undo the change.
func (s *paymentService) recordAction(
	ctx context.Context,
	actor domain.Actor,
	p *domain.Payment,
	actionType domain.PaymentActionType,
	previous, next domain.PaymentStatus,
	details map[string]any,
	notes string,
) {
	action := &domain.PaymentAction{
		PaymentID:      p.ID,
		BookingID:      p.BookingID,
		ActorUserID:    actor.ActorUserID(),
		ActionType:     actionType,
		PreviousStatus: previous,
		NewStatus:      next,
		Notes:          strings.TrimSpace(notes),
	}
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err == nil {
			action.ActionDetails = string(data)
		}
	}
	if err := s.actionRepo.Create(ctx, action); err != nil {
		logger.Error("Failed to record payment action", "paymentID", p.ID, "action", actionType, "error", err)
	}
}
