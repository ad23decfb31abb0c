// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const internalMessage = "internal server error"

// StatusFor maps a ledger error kind to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidRecipient),
		errors.Is(err, shared.ErrInsufficientInventory),
		errors.Is(err, shared.ErrPaymentExceedsBalance),
		errors.Is(err, shared.ErrInconsistentTotals):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the failure envelope. Internal errors never leak their
// detail to the client.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = internalMessage
	}
	Fail(w, status, message)
}
