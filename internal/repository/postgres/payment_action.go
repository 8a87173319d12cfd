package postgres

import (
	"context"
	"database/sql"
	"time"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/repository"
)

type paymentActionRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPaymentActionRepository(db *sql.DB, timeout time.Duration) repository.PaymentActionRepository {
	return &paymentActionRepository{db: db, timeout: timeout}
}

func (r *paymentActionRepository) Create(ctx context.Context, a *domain.PaymentAction) error {
	logger.EnterMethod("paymentActionRepository.Create", "paymentID", a.PaymentID, "actionType", a.ActionType)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var details any
	if a.ActionDetails != "" {
		details = a.ActionDetails
	}

	query := `
		INSERT INTO payment_actions (
			payment_id, booking_id, actor_user_id, action_type, previous_status, new_status,
			action_details, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.PaymentID, a.BookingID, a.ActorUserID, a.ActionType, nullString(string(a.PreviousStatus)),
		nullString(string(a.NewStatus)), details, nullString(a.Notes), time.Now(),
	).Scan(&a.ID, &a.CreatedAt)

	if err != nil {
		err = translateError(err, "create payment action")
		logger.ExitMethodWithError("paymentActionRepository.Create", err, "paymentID", a.PaymentID)
		return err
	}

	logger.ExitMethod("paymentActionRepository.Create", "actionID", a.ID)
	return nil
}

func (r *paymentActionRepository) ListByPayment(ctx context.Context, paymentID int32) ([]domain.PaymentAction, error) {
	logger.EnterMethod("paymentActionRepository.ListByPayment", "paymentID", paymentID)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, payment_id, booking_id, actor_user_id, action_type, COALESCE(previous_status, ''),
		       COALESCE(new_status, ''), COALESCE(action_details::text, ''), COALESCE(notes, ''), created_at
		FROM payment_actions
		WHERE payment_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		err = translateError(err, "list payment actions")
		logger.ExitMethodWithError("paymentActionRepository.ListByPayment", err, "paymentID", paymentID)
		return nil, err
	}
	defer rows.Close()

	actions := []domain.PaymentAction{}
	for rows.Next() {
		var a domain.PaymentAction
		if err := rows.Scan(
			&a.ID, &a.PaymentID, &a.BookingID, &a.ActorUserID, &a.ActionType, &a.PreviousStatus,
			&a.NewStatus, &a.ActionDetails, &a.Notes, &a.CreatedAt,
		); err != nil {
			err = translateError(err, "scan payment action")
			logger.ExitMethodWithError("paymentActionRepository.ListByPayment", err, "paymentID", paymentID)
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		err = translateError(err, "list payment actions")
		logger.ExitMethodWithError("paymentActionRepository.ListByPayment", err, "paymentID", paymentID)
		return nil, err
	}

	logger.ExitMethod("paymentActionRepository.ListByPayment", "paymentID", paymentID, "count", len(actions))
	return actions, nil
}
