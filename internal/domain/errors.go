package domain

import "errors"

// DomainError is a business error identified by a stable code.
// Two DomainErrors match under errors.Is when their codes are equal, so a
// detailed error built with NewError still matches the sentinel of its kind.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a DomainError of the same kind as base with a specific message.
func NewError(base *DomainError, message string) *DomainError {
	return &DomainError{Code: base.Code, Message: message}
}

var (
	ErrInvalidTransition   = &DomainError{Code: "INVALID_TRANSITION", Message: "illegal status change"}
	ErrInvalidAmount       = &DomainError{Code: "INVALID_AMOUNT", Message: "amount must be positive"}
	ErrInsufficientDeposit = &DomainError{Code: "INSUFFICIENT_DEPOSIT", Message: "refund exceeds available security deposit"}
	ErrNotFound            = &DomainError{Code: "NOT_FOUND", Message: "resource not found"}
	ErrDuplicateDue        = &DomainError{Code: "DUPLICATE_DUE", Message: "rent due already exists for this period"}
	ErrStoreUnavailable    = &DomainError{Code: "STORE_UNAVAILABLE", Message: "store temporarily unavailable"}
	ErrForbidden           = &DomainError{Code: "FORBIDDEN", Message: "not allowed to perform this action"}
	ErrValidation          = &DomainError{Code: "VALIDATION_FAILED", Message: "invalid input"}
)

// IsRetryable reports whether the caller may retry the operation with backoff.
// Only transient store failures qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// AsDomainError extracts the DomainError carried by err, if any.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Expected reports whether the error is caused by the caller rather than by
// the service. Store failures are not expected.
func (e *DomainError) Expected() bool {
	return e.Code != ErrStoreUnavailable.Code
}
