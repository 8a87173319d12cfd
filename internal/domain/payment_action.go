package domain

import "time"

type PaymentActionType string

const (
	PaymentActionCreated       PaymentActionType = "CREATED"
	PaymentActionProofAttached PaymentActionType = "PROOF_ATTACHED"
	PaymentActionApproved      PaymentActionType = "APPROVED"
	PaymentActionRejected      PaymentActionType = "REJECTED"
	PaymentActionCancelled     PaymentActionType = "CANCELLED"
	PaymentActionAdminOverride PaymentActionType = "ADMIN_OVERRIDE"
	PaymentActionDeleted       PaymentActionType = "DELETED"
)

// PaymentAction is an audit row. It has no foreign key to payments so the
// history survives an administrative delete.
type PaymentAction struct {
	ID             int32             `json:"id"`
	PaymentID      int32             `json:"payment_id"`
	BookingID      int32             `json:"booking_id"`
	ActorUserID    *int32            `json:"actor_user_id"` // NULL when the identity layer supplied none
	ActionType     PaymentActionType `json:"action_type"`
	PreviousStatus PaymentStatus     `json:"previous_status"`
	NewStatus      PaymentStatus     `json:"new_status"`
	ActionDetails  string            `json:"action_details"` // JSONB stored as string
	Notes          string            `json:"notes"`
	CreatedAt      time.Time         `json:"created_at"`
}
