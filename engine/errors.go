/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All engine error kinds in one place. Lifecycle managers wrap these with
  operation context; the API layer maps them to HTTP statuses with
  errors.Is / errors.As.

PROPAGATION POLICY:
  Every financial-mutation failure aborts the whole enclosing unit of work;
  there is no local recovery or partial commit. The engine itself never
  logs and never retries.
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be greater than 0")

	// ErrMissingField is returned when a required derived field is absent
	// (e.g. a refund without a direction).
	ErrMissingField = errors.New("missing required field")

	// ErrMissingMode is returned by a company ledger append on a call path
	// that required a mode but got none.
	ErrMissingMode = errors.New("missing mode for company ledger adjustment")

	// ErrInvalidMode is returned when a payment mode is not valid for the
	// operation (e.g. a booking charge with an unknown mode).
	ErrInvalidMode = errors.New("invalid payment mode")

	// ErrInsufficientFunds is returned when the waterfall cannot cover a
	// deduction from wallet plus credit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrEntityNotFound is returned when a referenced balance entity does
	// not resolve.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrNotFound is returned when a transaction/ticket/service record does
	// not resolve.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateRefNo is returned when a creation attempt reuses a
	// reference number. RefNo uniqueness is the only idempotency guard.
	ErrDuplicateRefNo = errors.New("duplicate reference number")

	// ErrAlreadyCancelled is returned when cancelling a cancelled booking.
	ErrAlreadyCancelled = errors.New("booking already cancelled")

	// ErrRefundExceedsCharge is returned when a requested customer refund
	// exceeds the original charge.
	ErrRefundExceedsCharge = errors.New("refund amount cannot exceed original charge")

	// ErrRecoveryExceedsPaid is returned when a requested agent recovery
	// exceeds the original agent payment.
	ErrRecoveryExceedsPaid = errors.New("recovery amount cannot exceed original agent payment")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports a waterfall shortage.
type InsufficientFundsError struct {
	Entity    EntityRef
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s %s: requested %s, available %s",
		e.Entity.Kind, e.Entity.ID, e.Requested, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// MissingFieldError names the field a call path required but did not get.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// EntityNotFoundError identifies the reference that failed to resolve.
type EntityNotFoundError struct {
	Entity EntityRef
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity.Kind, e.Entity.ID)
}

func (e *EntityNotFoundError) Unwrap() error { return ErrEntityNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid caller input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrMissingMode) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicateRefNo) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrRefundExceedsCharge) ||
		errors.Is(err, ErrRecoveryExceedsPaid)
}

// IsNotFound reports whether the error indicates a missing entity or record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound) || errors.Is(err, ErrNotFound)
}
