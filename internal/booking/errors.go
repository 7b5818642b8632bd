package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotTaken means the (date, block) slot already holds a live
	// booking. Retrying the same slot will fail until it frees up.
	ErrSlotTaken = errors.New("slot already reserved")

	// ErrSlotBeingBooked means another admission for the same slot holds
	// the lock right now. Safe to retry shortly.
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

	ErrBookingNotFound = errors.New("booking not found")

	// ErrValidation wraps malformed or policy-violating input. Not
	// retryable; the caller must correct the request.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden means the actor lacks the privilege for the requested
	// action.
	ErrForbidden = errors.New("actor not permitted")

	// ErrStorageUnavailable wraps storage failures. The only error class
	// callers may retry automatically.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InvalidTransitionError reports a lifecycle move the transition table
// does not permit, carrying the current state so the caller can explain
// why the action is unavailable.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
