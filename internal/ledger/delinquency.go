package ledger

import (
	"sort"
	"time"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/money"
)

// OverdueDays counts the days rent for period has been late as of now.
// For the current month it is today minus dueDay; for a past month the whole
// month from dueDay onward has elapsed. Future months are never overdue.
func OverdueDays(period domain.Period, now time.Time, dueDay int) int {
	current := domain.PeriodOf(now)
	var days int
	switch {
	case period.Equal(current):
		days = now.Day() - dueDay
	case period.Before(current):
		days = period.Days() - dueDay
	default:
		return 0
	}
	if days < 0 {
		return 0
	}
	return days
}

// IsFuture reports whether period starts after the month containing now.
func IsFuture(period domain.Period, now time.Time) bool {
	return domain.PeriodOf(now).Before(period)
}

// HasVerifiedRent reports whether the payments include verified rent for period.
func HasVerifiedRent(payments []domain.Payment, period domain.Period) bool {
	for i := range payments {
		if payments[i].Status == domain.PaymentStatusVerified && payments[i].IsRentFor(period) {
			return true
		}
	}
	return false
}

// LastPaymentDate returns the latest transaction date among verified payments.
func LastPaymentDate(payments []domain.Payment) *time.Time {
	var last *time.Time
	for i := range payments {
		p := &payments[i]
		if p.Status != domain.PaymentStatusVerified {
			continue
		}
		if last == nil || p.Date.After(*last) {
			d := p.Date
			last = &d
		}
	}
	return last
}

// DefaulterParams configures a delinquency computation.
type DefaulterParams struct {
	Period        domain.Period
	DueDay        int
	LateFeePerDay money.Money
	Now           time.Time
}

// Defaulter evaluates one booking. ok is false when the booking is not in
// default for the period: inactive, rent verified, or not yet past the due day.
func Defaulter(booking domain.Booking, payments []domain.Payment, params DefaulterParams) (domain.Defaulter, bool) {
	if !booking.IsActive() || IsFuture(params.Period, params.Now) {
		return domain.Defaulter{}, false
	}
	if HasVerifiedRent(payments, params.Period) {
		return domain.Defaulter{}, false
	}

	days := OverdueDays(params.Period, params.Now, params.DueDay)
	if days == 0 {
		return domain.Defaulter{}, false
	}
	fee := params.LateFeePerDay.MulInt(int64(days))
	return domain.Defaulter{
		Booking:         booking,
		OverdueDays:     days,
		LateFee:         fee,
		TotalDue:        booking.TotalAmount.Add(fee),
		LastPaymentDate: LastPaymentDate(payments),
	}, true
}

// SortDefaulters orders by overdue days descending, then booking id.
func SortDefaulters(ds []domain.Defaulter) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].OverdueDays != ds[j].OverdueDays {
			return ds[i].OverdueDays > ds[j].OverdueDays
		}
		return ds[i].Booking.ID < ds[j].Booking.ID
	})
}
