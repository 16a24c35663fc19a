package errors

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of them so the HTTP layer
// can map a failure to a status code with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrConflict         = errors.New("conflict")
	ErrInternal         = errors.New("internal error")
)

var (
	ErrUserNotFound        = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrListingNotFound     = fmt.Errorf("%w: listing not found", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: transaction not found", ErrNotFound)

	ErrMissingFields         = fmt.Errorf("%w: missing required fields", ErrValidation)
	ErrMissingListingID      = fmt.Errorf("%w: missing listing ID", ErrValidation)
	ErrEmailExists           = fmt.Errorf("%w: email already in use", ErrValidation)
	ErrInvalidWebhookPayload = fmt.Errorf("%w: webhook payload is missing checkout metadata", ErrValidation)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or revoked token", ErrUnauthorized)

	ErrOwnListing          = fmt.Errorf("%w: cannot purchase your own listing", ErrInvalidOperation)
	ErrListingNotAvailable = fmt.Errorf("%w: listing is not available", ErrInvalidOperation)

	ErrMissingSignature = fmt.Errorf("%w: no signature", ErrInvalidSignature)

	ErrRequestInProgress    = fmt.Errorf("%w: request with this idempotency key is already in progress", ErrConflict)
	ErrIdempotencyKeyReused = fmt.Errorf("%w: idempotency key was used for a different listing", ErrConflict)

	ErrNilUser        = errors.New("user is nil")
	ErrNilListing     = errors.New("listing is nil")
	ErrNilTransaction = errors.New("transaction is nil")
	ErrInvalidStatus  = errors.New("invalid status")
)

// Validation builds an ErrValidation carrying a field-specific message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
