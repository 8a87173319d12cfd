package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/repository"
)

const paymentColumns = `id, booking_id, amount, type, COALESCE(method, ''), status, billing_period,
		       COALESCE(receipt_ref, ''), COALESCE(notes, ''), date, created_by, reviewed_by,
		       reviewed_at, created_at, updated_at`

// normalizedStatus is the SQL form of domain.NormalizeLegacyStatus, so that
// status filters and pagination see the same status the caller gets back.
const normalizedStatus = `(CASE
		WHEN status IN ('PENDING', 'OVERDUE') AND COALESCE(receipt_ref, '') <> '' THEN 'AWAITING_REVIEW'
		WHEN status IN ('PENDING', 'OVERDUE') THEN 'SUBMITTED_PENDING'
		WHEN status = 'PARTIAL' THEN 'AWAITING_REVIEW'
		WHEN status = 'PAID' THEN 'VERIFIED'
		ELSE status END)`

type paymentRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPaymentRepository(db *sql.DB, timeout time.Duration) repository.PaymentRepository {
	return &paymentRepository{db: db, timeout: timeout}
}

func scanPayment(row rowScanner, p *domain.Payment) error {
	err := row.Scan(
		&p.ID, &p.BookingID, &p.Amount, &p.Type, &p.Method, &p.Status, &p.BillingPeriod,
		&p.ReceiptRef, &p.Notes, &p.Date, &p.CreatedBy, &p.ReviewedBy,
		&p.ReviewedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	p.Status = domain.NormalizeLegacyStatus(p.Status, p.ReceiptRef)
	return nil
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	logger.EnterMethod("paymentRepository.Create", "bookingID", p.BookingID, "type", p.Type, "amount", p.Amount)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO payments (
			booking_id, amount, type, method, status, billing_period, receipt_ref,
			notes, date, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		p.BookingID, p.Amount, p.Type, nullString(string(p.Method)), p.Status, p.BillingPeriod, nullString(p.ReceiptRef),
		nullString(p.Notes), p.Date, p.CreatedBy, now, now,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			err = domain.NewError(domain.ErrDuplicateDue,
				fmt.Sprintf("booking %d already has a rent due for %s", p.BookingID, p.BillingPeriod))
		} else {
			err = translateError(err, "create payment")
		}
		logger.ExitMethodWithError("paymentRepository.Create", err, "bookingID", p.BookingID)
		return err
	}

	logger.ExitMethod("paymentRepository.Create", "paymentID", p.ID)
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	logger.EnterMethod("paymentRepository.GetByID", "paymentID", id)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p := &domain.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, id), p); err != nil {
		err = translateError(err, fmt.Sprintf("payment %d", id))
		logger.ExitMethodWithError("paymentRepository.GetByID", err, "paymentID", id)
		return nil, err
	}

	logger.ExitMethod("paymentRepository.GetByID", "paymentID", id)
	return p, nil
}

func (r *paymentRepository) ListByBooking(ctx context.Context, bookingID int32) ([]domain.Payment, error) {
	return r.List(ctx, domain.PaymentFilter{BookingID: bookingID})
}

func (r *paymentRepository) ListByBookings(ctx context.Context, bookingIDs []int32) ([]domain.Payment, error) {
	logger.EnterMethod("paymentRepository.ListByBookings", "count", len(bookingIDs))
	if len(bookingIDs) == 0 {
		logger.ExitMethod("paymentRepository.ListByBookings", "count", 0)
		return []domain.Payment{}, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ANY($1) ORDER BY booking_id, date, id`
	payments, err := r.query(ctx, query, pq.Array(bookingIDs))
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.ListByBookings", err)
		return nil, err
	}

	logger.ExitMethod("paymentRepository.ListByBookings", "count", len(payments))
	return payments, nil
}

func (r *paymentRepository) List(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	logger.EnterMethod("paymentRepository.List", "bookingID", filter.BookingID, "statuses", filter.Statuses)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1 = 1`
	args := []any{}
	argIndex := 1

	if filter.BookingID > 0 {
		query += fmt.Sprintf(" AND booking_id = $%d", argIndex)
		args = append(args, filter.BookingID)
		argIndex++
	}
	if len(filter.Statuses) > 0 {
		query += fmt.Sprintf(" AND %s = ANY($%d)", normalizedStatus, argIndex)
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		argIndex++
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND type = ANY($%d)", argIndex)
		args = append(args, pq.Array(types))
		argIndex++
	}
	if filter.Period != nil {
		query += fmt.Sprintf(" AND billing_period = $%d", argIndex)
		args = append(args, filter.Period.String())
		argIndex++
	}

	query += " ORDER BY date DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	payments, err := r.query(ctx, query, args...)
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.List", err)
		return nil, err
	}

	logger.ExitMethod("paymentRepository.List", "count", len(payments))
	return payments, nil
}

func (r *paymentRepository) query(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "list payments")
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, translateError(err, "scan payment")
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "list payments")
	}
	return payments, nil
}

func (r *paymentRepository) UpdateIfStatus(ctx context.Context, p *domain.Payment, expected []domain.PaymentStatus) (bool, error) {
	logger.EnterMethod("paymentRepository.UpdateIfStatus", "paymentID", p.ID, "status", p.Status, "expected", expected)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE payments SET
			status = $1,
			amount = $2,
			method = $3,
			receipt_ref = $4,
			notes = $5,
			reviewed_by = $6,
			reviewed_at = $7,
			updated_at = $8
		WHERE id = $9 AND ` + normalizedStatus + ` = ANY($10)
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		p.Status, p.Amount, nullString(string(p.Method)), nullString(p.ReceiptRef), nullString(p.Notes),
		p.ReviewedBy, p.ReviewedAt, time.Now(), p.ID, pq.Array(statusStrings(expected)),
	).Scan(&p.UpdatedAt)

	if err == sql.ErrNoRows {
		logger.ExitMethod("paymentRepository.UpdateIfStatus", "paymentID", p.ID, "updated", false)
		return false, nil
	}
	if err != nil {
		err = translateError(err, fmt.Sprintf("update payment %d", p.ID))
		logger.ExitMethodWithError("paymentRepository.UpdateIfStatus", err, "paymentID", p.ID)
		return false, err
	}

	logger.ExitMethod("paymentRepository.UpdateIfStatus", "paymentID", p.ID, "updated", true)
	return true, nil
}

func (r *paymentRepository) CreateDueIfAbsent(ctx context.Context, p *domain.Payment) (bool, error) {
	logger.EnterMethod("paymentRepository.CreateDueIfAbsent", "bookingID", p.BookingID, "period", p.BillingPeriod)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO payments (
			booking_id, amount, type, status, billing_period, notes, date, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (booking_id, billing_period) WHERE type = 'RENT' DO NOTHING
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		p.BookingID, p.Amount, domain.PaymentTypeRent, p.Status, p.BillingPeriod, nullString(p.Notes), p.Date, p.CreatedBy, now, now,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		logger.ExitMethod("paymentRepository.CreateDueIfAbsent", "bookingID", p.BookingID, "created", false)
		return false, nil
	}
	if err != nil {
		err = translateError(err, "create rent due")
		logger.ExitMethodWithError("paymentRepository.CreateDueIfAbsent", err, "bookingID", p.BookingID)
		return false, err
	}

	logger.ExitMethod("paymentRepository.CreateDueIfAbsent", "paymentID", p.ID, "created", true)
	return true, nil
}

func (r *paymentRepository) Delete(ctx context.Context, id int32) error {
	logger.EnterMethod("paymentRepository.Delete", "paymentID", id)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			err = paymentReferenced(id)
		} else {
			err = translateError(err, fmt.Sprintf("delete payment %d", id))
		}
		logger.ExitMethodWithError("paymentRepository.Delete", err, "paymentID", id)
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		err = translateError(err, fmt.Sprintf("delete payment %d", id))
		logger.ExitMethodWithError("paymentRepository.Delete", err, "paymentID", id)
		return err
	}
	if n == 0 {
		err = domain.NewError(domain.ErrNotFound, fmt.Sprintf("payment %d not found", id))
		logger.ExitMethodWithError("paymentRepository.Delete", err, "paymentID", id)
		return err
	}

	logger.ExitMethod("paymentRepository.Delete", "paymentID", id)
	return nil
}
