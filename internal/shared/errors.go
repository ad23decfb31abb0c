package shared

import (
	"errors"
	"fmt"
)

// Error kinds shared by every ledger module. Domain errors wrap one of these
// so the HTTP edge can map them without knowing the domain.
var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRecipient indicates an invoice type/recipient mismatch.
	ErrInvalidRecipient = errors.New("invalid invoice recipient")
	// ErrInsufficientInventory indicates a stock decrement beyond on-hand quantity.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrPaymentExceedsBalance indicates a payment larger than the outstanding due.
	ErrPaymentExceedsBalance = errors.New("payment exceeds invoice balance")
	// ErrInconsistentTotals indicates paid + due no longer equals total.
	ErrInconsistentTotals = errors.New("inconsistent invoice totals")
	// ErrInvalidState indicates a state transition from a wrong state.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrInternal wraps storage failures and anything unexpected.
	ErrInternal = errors.New("internal error")
	// ErrUnauthorized indicates missing caller identity.
	ErrUnauthorized = errors.New("unauthorized")
)

var kinds = []error{
	ErrValidation,
	ErrNotFound,
	ErrInvalidRecipient,
	ErrInsufficientInventory,
	ErrPaymentExceedsBalance,
	ErrInconsistentTotals,
	ErrInvalidState,
	ErrInternal,
	ErrUnauthorized,
	ErrIdempotencyConflict,
}

// Classify keeps typed errors as they are and wraps anything else as ErrInternal.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}

// Validationf builds a validation error with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error with a formatted detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
