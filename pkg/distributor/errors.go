package distributor

import "errors"

// Every operation failure maps to one of these sentinels so callers can
// branch on the condition. None of them implies partial state mutation:
// an operation that returns an error has applied nothing.
var (
	// ErrAlreadyInitialized is returned when initialize runs twice for the
	// same campaign identity. Protocol violation, never retryable.
	ErrAlreadyInitialized = errors.New("distributor already initialized")

	// ErrUninitialized is returned when an operation runs before initialize.
	ErrUninitialized = errors.New("distributor not initialized")

	// ErrUnauthorized is returned when the caller identity does not match
	// the required identity (authority for fund, recipient for claim).
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrInvalidAmount is returned when fund is called with a zero amount.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrAlreadyClaimed is returned when the recipient's entitlement has
	// already been paid out. Protocol violation, never retryable.
	ErrAlreadyClaimed = errors.New("entitlement already claimed")

	// ErrInvalidProof is returned when the merkle proof does not bind
	// (recipient, amount) to the committed root. Recoverable: the caller
	// can re-fetch a correct proof.
	ErrInvalidProof = errors.New("invalid merkle proof")

	// ErrInsufficientFunds is returned when the custody balance cannot
	// cover the claim. Signals a funding shortfall, not a protocol
	// violation; the claim can be retried after the campaign is funded.
	ErrInsufficientFunds = errors.New("insufficient custody balance")
)
