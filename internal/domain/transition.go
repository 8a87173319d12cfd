package domain

import "fmt"

// PaymentEvent is a request to move a payment through the review workflow.
type PaymentEvent string

const (
	EventAttachProof PaymentEvent = "ATTACH_PROOF"
	EventApprove     PaymentEvent = "APPROVE"
	EventReject      PaymentEvent = "REJECT"
	EventCancel      PaymentEvent = "CANCEL"
)

type transitionRule struct {
	from       []PaymentStatus
	to         PaymentStatus
	idempotent bool // reaching an already-current target is a no-op success
}

var transitionRules = map[PaymentEvent]transitionRule{
	EventAttachProof: {
		from:       []PaymentStatus{PaymentStatusSubmittedPending, PaymentStatusRejected},
		to:         PaymentStatusAwaitingReview,
		idempotent: true,
	},
	// approve and reject must never silently succeed twice
	EventApprove: {
		from: []PaymentStatus{PaymentStatusAwaitingReview},
		to:   PaymentStatusVerified,
	},
	EventReject: {
		from: []PaymentStatus{PaymentStatusAwaitingReview},
		to:   PaymentStatusRejected,
	},
	EventCancel: {
		from:       []PaymentStatus{PaymentStatusSubmittedPending, PaymentStatusAwaitingReview, PaymentStatusRejected},
		to:         PaymentStatusCancelled,
		idempotent: true,
	},
}

// SourceStatuses returns the statuses from which the event may fire. The
// store uses them as the expected values of its compare-and-swap update.
func SourceStatuses(event PaymentEvent) []PaymentStatus {
	rule, ok := transitionRules[event]
	if !ok {
		return nil
	}
	out := make([]PaymentStatus, len(rule.from))
	copy(out, rule.from)
	return out
}

// NextStatus validates the event against the current status.
// It returns noop=true when the payment is already in the target status
// and the event is idempotent.
func NextStatus(current PaymentStatus, event PaymentEvent) (next PaymentStatus, noop bool, err error) {
	rule, ok := transitionRules[event]
	if !ok {
		return "", false, NewError(ErrInvalidTransition, fmt.Sprintf("unknown payment event %q", event))
	}
	if current == rule.to && rule.idempotent {
		return current, true, nil
	}
	for _, s := range rule.from {
		if s == current {
			return rule.to, false, nil
		}
	}
	return "", false, NewError(ErrInvalidTransition,
		fmt.Sprintf("cannot %s a payment in status %s", eventVerb(event), current))
}

// CheckOverride validates an administrative status correction.
// Any status may be set except that a cancelled payment stays cancelled.
func CheckOverride(current, next PaymentStatus) error {
	if !next.IsValid() {
		return NewError(ErrValidation, fmt.Sprintf("unknown payment status %q", next))
	}
	if current == PaymentStatusCancelled && next != PaymentStatusCancelled {
		return NewError(ErrInvalidTransition, "a cancelled payment cannot be reopened")
	}
	return nil
}

func eventVerb(e PaymentEvent) string {
	switch e {
	case EventAttachProof:
		return "attach proof to"
	case EventApprove:
		return "approve"
	case EventReject:
		return "reject"
	case EventCancel:
		return "cancel"
	}
	return string(e)
}
