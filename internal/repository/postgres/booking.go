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

const bookingColumns = `id, resident_id, room_id, check_in, check_out, monthly_rent, security_deposit,
		       total_amount, status, created_at, updated_at`

type bookingRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewBookingRepository(db *sql.DB, timeout time.Duration) repository.BookingRepository {
	return &bookingRepository{db: db, timeout: timeout}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner, b *domain.Booking) error {
	return row.Scan(
		&b.ID, &b.ResidentID, &b.RoomID, &b.CheckIn, &b.CheckOut, &b.MonthlyRent, &b.SecurityDeposit,
		&b.TotalAmount, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
}

func (r *bookingRepository) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	logger.EnterMethod("bookingRepository.GetByID", "bookingID", id)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	b := &domain.Booking{}
	if err := scanBooking(r.db.QueryRowContext(ctx, query, id), b); err != nil {
		err = translateError(err, fmt.Sprintf("booking %d", id))
		logger.ExitMethodWithError("bookingRepository.GetByID", err, "bookingID", id)
		return nil, err
	}

	logger.ExitMethod("bookingRepository.GetByID", "bookingID", id)
	return b, nil
}

func (r *bookingRepository) ListByStatus(ctx context.Context, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	logger.EnterMethod("bookingRepository.ListByStatus", "statuses", statuses)
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	var args []any
	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, s := range statuses {
			strs[i] = string(s)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(strs))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		err = translateError(err, "list bookings")
		logger.ExitMethodWithError("bookingRepository.ListByStatus", err)
		return nil, err
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		var b domain.Booking
		if err := scanBooking(rows, &b); err != nil {
			err = translateError(err, "scan booking")
			logger.ExitMethodWithError("bookingRepository.ListByStatus", err)
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		err = translateError(err, "list bookings")
		logger.ExitMethodWithError("bookingRepository.ListByStatus", err)
		return nil, err
	}

	logger.ExitMethod("bookingRepository.ListByStatus", "count", len(bookings))
	return bookings, nil
}
