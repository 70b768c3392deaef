package attendance

import (
	"errors"
	"fmt"
)

// Lifecycle and validation errors surfaced to HTTP handlers. Handlers map
// these to status codes; none of them is ever retried automatically.
var (
	ErrUnknownEmployee   = errors.New("unknown employee")
	ErrBlocked           = errors.New("employee is blocked")
	ErrMissingImage      = errors.New("photo evidence required")
	ErrMissingLocation   = errors.New("location required")
	ErrInvalidLocation   = errors.New("location coordinates out of range")
	ErrAlreadyCheckedIn  = errors.New("already checked in today")
	ErrNotCheckedIn      = errors.New("no check-in recorded today")
	ErrAlreadyCheckedOut = errors.New("already checked out today")
	ErrStaleSample       = errors.New("location sample older than last update")
)

// EarlyCheckoutError signals that the checkout would end the shift before the
// configured minimum and the caller has not confirmed. The record is not
// mutated; a second call with confirm set performs the transition.
type EarlyCheckoutError struct {
	HoursWorked float64
	MinHours    float64
}

func (e *EarlyCheckoutError) Error() string {
	return fmt.Sprintf("shift is %.2fh, below the %.2fh minimum: confirmation required", e.HoursWorked, e.MinHours)
}
