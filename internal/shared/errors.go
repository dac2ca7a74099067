package shared

import "errors"

// Core error taxonomy. Every failure the ledger surfaces wraps one of
// these sentinels so callers can branch with errors.Is.
var (
	// ErrValidation indicates malformed or missing input, rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStateTransition indicates a workflow transition not allowed from the current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrInsufficientStock indicates a reservation exceeding available quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrencyConflict indicates a lost update was detected; the caller must retry the whole operation.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrNotFound indicates a referenced product, location, customer or adjustment is absent.
	ErrNotFound = errors.New("not found")
)

// UserSafeMessage maps core errors to messages safe to show outside the service.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "The request is invalid or incomplete."
	case errors.Is(err, ErrInvalidStateTransition):
		return "The operation is not allowed in the current state."
	case errors.Is(err, ErrInsufficientStock):
		return "Not enough available stock."
	case errors.Is(err, ErrConcurrencyConflict):
		return "The record changed while processing. Please retry."
	case errors.Is(err, ErrNotFound):
		return "The referenced record was not found."
	default:
		return "An unexpected error occurred."
	}
}
