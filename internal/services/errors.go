package services

import "errors"

// Error taxonomy for the account service and escrow engine. Handlers map
// these to HTTP statuses; nothing else in the module invents ad hoc errors
// for the ledger path.
var (
	// ErrInvalidAmount is returned when a mutating operation receives a
	// non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds is returned when the account balance is too low
	// for the requested debit or lock.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidState is returned when a job is not in a status that permits
	// the requested transition.
	ErrInvalidState = errors.New("job is not in a valid state for this transition")

	// ErrUnauthorized is returned when the caller is neither the client nor
	// the artist of record, or is not an arbiter for arbitration calls.
	ErrUnauthorized = errors.New("caller is not authorized for this transition")

	// ErrNotFound is returned when the referenced job, submission, or refund
	// request does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned after the engine exhausts its internal retries
	// against concurrent modifications of the same job.
	ErrConflict = errors.New("concurrent modification, retry")

	// ErrInvariantViolation covers balance states that correct callers can
	// never produce, e.g. unlocking more than is locked.
	ErrInvariantViolation = errors.New("balance invariant violation")
)
