package memory

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/money"
)

type seedBooking struct {
	ID              int32     `yaml:"id"`
	ResidentID      int32     `yaml:"resident_id"`
	RoomID          int32     `yaml:"room_id"`
	CheckIn         time.Time `yaml:"check_in"`
	MonthlyRent     int64     `yaml:"monthly_rent"`
	SecurityDeposit int64     `yaml:"security_deposit"`
	TotalAmount     int64     `yaml:"total_amount"`
	Status          string    `yaml:"status"`
}

type seedFile struct {
	Bookings []seedBooking `yaml:"bookings"`
}

// SeedBookings loads bookings from YAML. Amounts are in minor units.
func (st *Store) SeedBookings(data []byte) (int, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("failed to parse seed bookings: %w", err)
	}
	for _, sb := range f.Bookings {
		status := domain.BookingStatus(sb.Status)
		if status == "" {
			status = domain.BookingStatusCheckedIn
		}
		b := domain.Booking{
			ID:              sb.ID,
			ResidentID:      sb.ResidentID,
			RoomID:          sb.RoomID,
			CheckIn:         sb.CheckIn,
			MonthlyRent:     money.Money(sb.MonthlyRent),
			SecurityDeposit: money.Money(sb.SecurityDeposit),
			TotalAmount:     money.Money(sb.TotalAmount),
			Status:          status,
			CreatedAt:       time.Now().UTC(),
		}
		if b.ID <= 0 || b.ResidentID <= 0 {
			return 0, fmt.Errorf("seed booking needs positive id and resident_id: %+v", sb)
		}
		if err := b.Validate(); err != nil {
			return 0, err
		}
		st.PutBooking(b)
	}
	return len(f.Bookings), nil
}

// SeedBookingsFile is SeedBookings reading from path.
func (st *Store) SeedBookingsFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}
	return st.SeedBookings(data)
}
