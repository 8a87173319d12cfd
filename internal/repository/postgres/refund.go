package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/money"
	"dorm-ledger-service/internal/repository"
)

const refundColumns = `id, payment_id, booking_id, amount, reason, status, COALESCE(notes, ''),
		       requested_by, resolved_by, created_at, resolved_at`

type refundRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRefundRepository(db *sql.DB, timeout time.Duration) repository.RefundRepository {
	return &refundRepository{db: db, timeout: timeout}
}

func scanRefund(row rowScanner, rr *domain.RefundRequest) error {
	return row.Scan(
		&rr.ID, &rr.PaymentID, &rr.BookingID, &rr.Amount, &rr.Reason, &rr.Status, &rr.Notes,
		&rr.RequestedBy, &rr.ResolvedBy, &rr.CreatedAt, &rr.ResolvedAt,
	)
}

func (r *refundRepository) GetByID(ctx context.Context, id int32) (*domain.RefundRequest, error) {
	logger.EnterMethod("refundRepository.GetByID", "refundID", id)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + refundColumns + ` FROM refund_requests WHERE id = $1`

	rr := &domain.RefundRequest{}
	if err := scanRefund(r.db.QueryRowContext(ctx, query, id), rr); err != nil {
		err = translateError(err, fmt.Sprintf("refund request %d", id))
		logger.ExitMethodWithError("refundRepository.GetByID", err, "refundID", id)
		return nil, err
	}

	logger.ExitMethod("refundRepository.GetByID", "refundID", id)
	return rr, nil
}

func (r *refundRepository) ListByBooking(ctx context.Context, bookingID int32) ([]domain.RefundRequest, error) {
	logger.EnterMethod("refundRepository.ListByBooking", "bookingID", bookingID)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + refundColumns + ` FROM refund_requests WHERE booking_id = $1 ORDER BY created_at DESC, id DESC`
	refunds, err := r.query(ctx, query, bookingID)
	if err != nil {
		logger.ExitMethodWithError("refundRepository.ListByBooking", err, "bookingID", bookingID)
		return nil, err
	}

	logger.ExitMethod("refundRepository.ListByBooking", "bookingID", bookingID, "count", len(refunds))
	return refunds, nil
}

func (r *refundRepository) query(ctx context.Context, query string, args ...any) ([]domain.RefundRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "list refund requests")
	}
	defer rows.Close()

	refunds := []domain.RefundRequest{}
	for rows.Next() {
		var rr domain.RefundRequest
		if err := scanRefund(rows, &rr); err != nil {
			return nil, translateError(err, "scan refund request")
		}
		refunds = append(refunds, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "list refund requests")
	}
	return refunds, nil
}

// lockBooking takes a row lock on the booking for the rest of the transaction
// and returns it with the sum of its completed refunds.
func lockBooking(ctx context.Context, tx *sql.Tx, bookingID int32) (*domain.Booking, money.Money, error) {
	b := &domain.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	if err := scanBooking(tx.QueryRowContext(ctx, query, bookingID), b); err != nil {
		return nil, 0, translateError(err, fmt.Sprintf("booking %d", bookingID))
	}

	var completed money.Money
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM refund_requests WHERE booking_id = $1 AND status = $2`,
		bookingID, domain.RefundStatusCompleted,
	).Scan(&completed)
	if err != nil {
		return nil, 0, translateError(err, "sum completed refunds")
	}
	return b, completed, nil
}

func (r *refundRepository) CreateGuarded(ctx context.Context, rr *domain.RefundRequest, guard repository.RefundGuard) error {
	logger.EnterMethod("refundRepository.CreateGuarded", "bookingID", rr.BookingID, "amount", rr.Amount)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		err = translateError(err, "begin refund transaction")
		logger.ExitMethodWithError("refundRepository.CreateGuarded", err)
		return err
	}
	defer tx.Rollback()

	booking, completed, err := lockBooking(ctx, tx, rr.BookingID)
	if err != nil {
		logger.ExitMethodWithError("refundRepository.CreateGuarded", err, "bookingID", rr.BookingID)
		return err
	}
	if guard != nil {
		if err := guard(booking, completed); err != nil {
			logger.ExitMethodWithError("refundRepository.CreateGuarded", err, "bookingID", rr.BookingID)
			return err
		}
	}

	query := `
		INSERT INTO refund_requests (payment_id, booking_id, amount, reason, status, notes, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(ctx, query,
		rr.PaymentID, rr.BookingID, rr.Amount, rr.Reason, rr.Status, nullString(rr.Notes), rr.RequestedBy, time.Now(),
	).Scan(&rr.ID, &rr.CreatedAt)
	if err != nil {
		err = translateError(err, "create refund request")
		logger.ExitMethodWithError("refundRepository.CreateGuarded", err, "bookingID", rr.BookingID)
		return err
	}

	if err := tx.Commit(); err != nil {
		err = translateError(err, "commit refund request")
		logger.ExitMethodWithError("refundRepository.CreateGuarded", err, "bookingID", rr.BookingID)
		return err
	}

	logger.ExitMethod("refundRepository.CreateGuarded", "refundID", rr.ID)
	return nil
}

func (r *refundRepository) ResolveGuarded(ctx context.Context, rr *domain.RefundRequest, guard repository.RefundGuard) error {
	logger.EnterMethod("refundRepository.ResolveGuarded", "refundID", rr.ID, "status", rr.Status)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		err = translateError(err, "begin refund transaction")
		logger.ExitMethodWithError("refundRepository.ResolveGuarded", err)
		return err
	}
	defer tx.Rollback()

	var (
		bookingID int32
		amount    money.Money
		current   domain.RefundStatus
	)
	err = tx.QueryRowContext(ctx,
		`SELECT booking_id, amount, status FROM refund_requests WHERE id = $1 FOR UPDATE`, rr.ID,
	).Scan(&bookingID, &amount, &current)
	if err != nil {
		err = translateError(err, fmt.Sprintf("refund request %d", rr.ID))
		logger.ExitMethodWithError("refundRepository.ResolveGuarded", err, "refundID", rr.ID)
		return err
	}
	if current != domain.RefundStatusPending {
		err = domain.NewError(domain.ErrInvalidTransition,
			fmt.Sprintf("refund request %d is already %s", rr.ID, current))
		logger.ExitMethodWithError("refundRepository.ResolveGuarded", err, "refundID", rr.ID)
		return err
	}
	rr.BookingID = bookingID
	rr.Amount = amount

	if rr.Status == domain.RefundStatusCompleted && guard != nil {
		booking, completed, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			logger.ExitMethodWithError("refundRepository.ResolveGuarded", err, "refundID", rr.ID)
			return err
		}
		if err := guard(booking, completed); err != nil {
			logger.ExitMethodWithError("refundRepository.ResolveGuarded", err, "refundID", rr.ID)
			return err
		}
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE refund_requests SET status = $1, notes = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $5
		RETURNING resolved_at
	`, rr.Status, nullString(rr.Notes), rr.ResolvedBy, time.Now(), rr.ID).Scan(&rr.ResolvedAt)
	if err != nil {
		err = translateError(err, fmt.Sprintf("resolve refund request %d", rr.ID))
		logger.ExitMethodWithError("refundRepository.ResolveGuarded", err, "refundID", rr.ID)
		return err
	}

	if err := tx.Commit(); err != nil {
		err = translateError(err, "commit refund resolution")
		logger.ExitMethodWithError("refundRepository.ResolveGuarded", err, "refundID", rr.ID)
		return err
	}

	logger.ExitMethod("refundRepository.ResolveGuarded", "refundID", rr.ID, "status", rr.Status)
	return nil
}
