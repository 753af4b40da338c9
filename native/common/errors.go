package common

import "errors"

// Shared error kinds for the ledger engines. Each package wraps these with
// contextual detail so callers can classify failures with errors.Is while the
// RPC layer maps them to wire codes.
var (
	// ErrUnauthorized indicates the caller role does not permit the operation.
	ErrUnauthorized = errors.New("unauthorized caller")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidState indicates a status precondition was violated.
	ErrInvalidState = errors.New("invalid status transition")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientFunds indicates a payment below the required threshold.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
