package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/money"
)

var paymentRowColumns = []string{
	"id", "booking_id", "amount", "type", "method", "status", "billing_period",
	"receipt_ref", "notes", "date", "created_by", "reviewed_by",
	"reviewed_at", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestPaymentRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, time.Second)
	ctx := context.Background()
	period := domain.Period{Year: 2024, Month: time.March}

	t.Run("Success", func(t *testing.T) {
		p := &domain.Payment{
			BookingID:     1,
			Amount:        money.Money(25000),
			Type:          domain.PaymentTypeRent,
			Status:        domain.PaymentStatusSubmittedPending,
			BillingPeriod: &period,
		}
		now := time.Now()

		mock.ExpectQuery("INSERT INTO payments").
			WithArgs(int32(1), money.Money(25000), domain.PaymentTypeRent, nil, domain.PaymentStatusSubmittedPending,
				"2024-03", nil, nil, sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, now, now))

		err := repo.Create(ctx, p)
		assert.NoError(t, err)
		assert.Equal(t, int32(10), p.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate rent due", func(t *testing.T) {
		p := &domain.Payment{BookingID: 1, Amount: 25000, Type: domain.PaymentTypeRent, BillingPeriod: &period}

		mock.ExpectQuery("INSERT INTO payments").
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

		err := repo.Create(ctx, p)
		assert.ErrorIs(t, err, domain.ErrDuplicateDue)
	})
}

func TestPaymentRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, time.Second)
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
			WithArgs(int32(5)).
			WillReturnRows(sqlmock.NewRows(paymentRowColumns).AddRow(
				5, 1, 25000, "RENT", "CASH", "AWAITING_REVIEW", "2024-03",
				"receipts/a.jpg", "", now, nil, nil,
				nil, now, now,
			))

		p, err := repo.GetByID(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, money.Money(25000), p.Amount)
		assert.Equal(t, domain.PaymentStatusAwaitingReview, p.Status)
		require.NotNil(t, p.BillingPeriod)
		assert.Equal(t, "2024-03", p.BillingPeriod.String())
		assert.Nil(t, p.ReviewedAt)
	})

	t.Run("Legacy status is normalized", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
			WithArgs(int32(6)).
			WillReturnRows(sqlmock.NewRows(paymentRowColumns).AddRow(
				6, 1, 25000, "SECURITY", "", "PAID", nil,
				"", "", now, nil, nil,
				nil, now, now,
			))

		p, err := repo.GetByID(ctx, 6)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusVerified, p.Status)
		assert.Nil(t, p.BillingPeriod)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
			WithArgs(int32(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, 99)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Timeout is retryable", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
			WithArgs(int32(7)).
			WillReturnError(context.DeadlineExceeded)

		_, err := repo.GetByID(ctx, 7)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestPaymentRepository_UpdateIfStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, time.Second)
	ctx := context.Background()
	reviewedAt := time.Now()
	reviewer := int32(3)

	p := &domain.Payment{
		ID:         5,
		Amount:     25000,
		Method:     domain.PaymentMethodCash,
		Status:     domain.PaymentStatusVerified,
		ReceiptRef: "receipts/a.jpg",
		ReviewedBy: &reviewer,
		ReviewedAt: &reviewedAt,
	}
	expected := []domain.PaymentStatus{domain.PaymentStatusAwaitingReview}

	t.Run("Swapped", func(t *testing.T) {
		mock.ExpectQuery("UPDATE payments SET (.+) WHERE id = \\$9 AND \\(CASE (.+) END\\) = ANY\\(\\$10\\)").
			WithArgs(domain.PaymentStatusVerified, money.Money(25000), "CASH", "receipts/a.jpg", nil,
				&reviewer, &reviewedAt, sqlmock.AnyArg(), int32(5), pq.Array([]string{"AWAITING_REVIEW"})).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

		ok, err := repo.UpdateIfStatus(ctx, p, expected)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Stale status", func(t *testing.T) {
		mock.ExpectQuery("UPDATE payments SET").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

		ok, err := repo.UpdateIfStatus(ctx, p, expected)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Connection lost", func(t *testing.T) {
		mock.ExpectQuery("UPDATE payments SET").
			WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

		_, err := repo.UpdateIfStatus(ctx, p, expected)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_CreateDueIfAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, time.Second)
	ctx := context.Background()
	period := domain.Period{Year: 2024, Month: time.March}

	newDue := func() *domain.Payment {
		return &domain.Payment{
			BookingID:     1,
			Amount:        25000,
			Type:          domain.PaymentTypeRent,
			Status:        domain.PaymentStatusSubmittedPending,
			BillingPeriod: &period,
			Date:          period.FirstDay(),
		}
	}

	t.Run("Created", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("INSERT INTO payments (.+) ON CONFLICT \\(booking_id, billing_period\\) WHERE type = 'RENT' DO NOTHING").
			WithArgs(int32(1), money.Money(25000), domain.PaymentTypeRent, domain.PaymentStatusSubmittedPending, "2024-03",
				nil, period.FirstDay(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))

		due := newDue()
		created, err := repo.CreateDueIfAbsent(ctx, due)
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int32(11), due.ID)
	})

	t.Run("Already exists", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO payments (.+) ON CONFLICT").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

		created, err := repo.CreateDueIfAbsent(ctx, newDue())
		assert.NoError(t, err)
		assert.False(t, created)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, time.Second)
	ctx := context.Background()
	now := time.Now()
	period := domain.Period{Year: 2024, Month: time.March}

	// the status filter runs on the normalized status, before LIMIT/OFFSET
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE 1 = 1 AND booking_id = \\$1 AND \\(CASE (.+) END\\) = ANY\\(\\$2\\) AND type = ANY\\(\\$3\\) AND billing_period = \\$4 ORDER BY date DESC, id DESC LIMIT \\$5 OFFSET \\$6").
		WithArgs(int32(1), pq.Array([]string{"AWAITING_REVIEW"}), pq.Array([]string{"RENT"}), "2024-03", int32(2), int32(0)).
		WillReturnRows(sqlmock.NewRows(paymentRowColumns).
			AddRow(1, 1, 100, "RENT", "", "AWAITING_REVIEW", "2024-03", "r", "", now, nil, nil, nil, now, now).
			AddRow(2, 1, 100, "RENT", "", "PENDING", "2024-03", "r2", "", now, nil, nil, nil, now, now))

	payments, err := repo.List(ctx, domain.PaymentFilter{
		BookingID: 1,
		Statuses:  []domain.PaymentStatus{domain.PaymentStatusAwaitingReview},
		Types:     []domain.PaymentType{domain.PaymentTypeRent},
		Period:    &period,
		Limit:     2,
	})
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, domain.PaymentStatusAwaitingReview, payments[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, time.Second)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM payments WHERE id = \\$1").
			WithArgs(int32(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.Delete(ctx, 5))
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM payments WHERE id = \\$1").
			WithArgs(int32(6)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.Delete(ctx, 6), domain.ErrNotFound)
	})

	t.Run("Referenced by refund", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM payments WHERE id = \\$1").
			WithArgs(int32(7)).
			WillReturnError(&pq.Error{Code: "23503", Constraint: "refund_requests_payment_id_fkey"})
		err := repo.Delete(ctx, 7)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.False(t, domain.IsRetryable(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
