package shared

import "errors"

// Error taxonomy shared by all modules. Domain packages wrap these with
// module context so handlers can map them to HTTP statuses with errors.Is.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid input caught before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a stale or already-consumed resource.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates the acting user could not be resolved.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInsufficientStock indicates the ledger cannot satisfy a decrement.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvariant indicates a quantity invariant would be violated.
	ErrInvariant = errors.New("invariant violation")
	// ErrExpired indicates an operation outside its allowed time window.
	ErrExpired = errors.New("window expired")
)
