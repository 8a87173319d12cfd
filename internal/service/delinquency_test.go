package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/money"
	"dorm-ledger-service/internal/repository/memory"
)

func TestDelinquencyService_ComputeDefaulters(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	for _, id := range []int32{1, 2, 3} {
		st.PutBooking(checkedIn(id))
	}
	gone := checkedIn(4)
	gone.Status = domain.BookingStatusCheckedOut
	st.PutBooking(gone)

	march := domain.Period{Year: 2024, Month: time.March}
	verifiedRent := &domain.Payment{
		BookingID: 2, Amount: 10000, Type: domain.PaymentTypeRent, Status: domain.PaymentStatusVerified,
		BillingPeriod: &march, Date: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.PaymentRepository.Create(ctx, verifiedRent))
	lastPaid := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.PaymentRepository.Create(ctx, &domain.Payment{
		BookingID: 3, Amount: 500, Type: domain.PaymentTypeOther, Status: domain.PaymentStatusVerified, Date: lastPaid,
	}))
	require.NoError(t, st.PaymentRepository.Create(ctx, &domain.Payment{
		BookingID: 1, Amount: 10000, Type: domain.PaymentTypeRent, Status: domain.PaymentStatusAwaitingReview,
		BillingPeriod: &march, Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}))

	svc := NewDelinquencyService(st.BookingRepository, st.PaymentRepository, 5, 0).(*delinquencyService)
	svc.now = func() time.Time { return time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC) }

	t.Run("Past month", func(t *testing.T) {
		ds, err := svc.ComputeDefaulters(ctx, march, 5, 100)
		require.NoError(t, err)
		require.Len(t, ds, 2)
		assert.Equal(t, int32(1), ds[0].Booking.ID)
		assert.Equal(t, int32(3), ds[1].Booking.ID)
		assert.Equal(t, 26, ds[0].OverdueDays)
		assert.Equal(t, money.Money(2600), ds[0].LateFee)
		assert.Equal(t, money.Money(42600), ds[0].TotalDue)
		assert.Nil(t, ds[0].LastPaymentDate)
		require.NotNil(t, ds[1].LastPaymentDate)
		assert.Equal(t, lastPaid, *ds[1].LastPaymentDate)
	})

	t.Run("Current month uses today", func(t *testing.T) {
		ds, err := svc.ComputeDefaulters(ctx, domain.Period{Year: 2024, Month: time.April}, 5, 0)
		require.NoError(t, err)
		require.Len(t, ds, 3)
		assert.Equal(t, 10, ds[0].OverdueDays)
		assert.Equal(t, money.Zero, ds[0].LateFee)
	})

	t.Run("Before the due day nobody defaults", func(t *testing.T) {
		ds, err := svc.ComputeDefaulters(ctx, domain.Period{Year: 2024, Month: time.April}, 20, 0)
		require.NoError(t, err)
		assert.Empty(t, ds)
	})

	t.Run("Future month", func(t *testing.T) {
		ds, err := svc.ComputeDefaulters(ctx, domain.Period{Year: 2024, Month: time.May}, 5, 100)
		require.NoError(t, err)
		assert.Empty(t, ds)
	})

	t.Run("Configured defaults", func(t *testing.T) {
		ds, err := svc.ComputeDefaulters(ctx, march, 0, -1)
		require.NoError(t, err)
		require.NotEmpty(t, ds)
		assert.Equal(t, 26, ds[0].OverdueDays)
		assert.Equal(t, money.Zero, ds[0].LateFee)
	})

	t.Run("Invalid due day", func(t *testing.T) {
		_, err := svc.ComputeDefaulters(ctx, march, 31, 0)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestDelinquencyService_StoreFailure(t *testing.T) {
	ctx := context.Background()
	bookings := new(MockBookingRepo)
	payments := new(MockPaymentRepo)
	svc := NewDelinquencyService(bookings, payments, 5, 0)

	bookings.On("ListByStatus", ctx, mock.Anything).Return(nil, domain.ErrStoreUnavailable).Once()

	_, err := svc.ComputeDefaulters(ctx, domain.Period{Year: 2020, Month: time.January}, 5, 0)
	assert.True(t, domain.IsRetryable(err))
	bookings.AssertExpectations(t)
}
