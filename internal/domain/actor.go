package domain

type Role string

const (
	RoleResident Role = "RESIDENT"
	RoleWarden   Role = "WARDEN"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleResident, RoleWarden, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller as supplied by the identity layer.
type Actor struct {
	UserID int32 `json:"user_id"`
	Role   Role  `json:"role"`
}

// IsOperator reports whether the actor may review payments and resolve refunds.
func (a Actor) IsOperator() bool {
	return a.Role == RoleWarden || a.Role == RoleAdmin
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccessBooking reports whether the actor may read or act on the booking.
// Residents only see their own bookings.
func (a Actor) CanAccessBooking(b *Booking) bool {
	if a.IsOperator() {
		return true
	}
	return b != nil && b.ResidentID == a.UserID
}

// ActorUserID returns the user id for audit columns, nil when unknown.
func (a Actor) ActorUserID() *int32 {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}
