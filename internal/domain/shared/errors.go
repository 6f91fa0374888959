// Package shared holds the error taxonomy surfaced by every expense tracker operation.
// Domain packages return typed errors that match these sentinels through errors.Is.
package shared

import "errors"

var (
	// ErrInvalidAmount is returned for amounts that are zero, negative or unparseable
	ErrInvalidAmount = errors.New("invalid amount: must be a positive value")
	// ErrInvalidDuration is returned for budget windows of zero or negative length
	ErrInvalidDuration = errors.New("invalid duration: budget window must be longer than zero")
	// ErrInvalidLimit is returned for budget limits that are zero or negative
	ErrInvalidLimit = errors.New("invalid limit: must be a positive value")
	// ErrDuplicate signals that an event was already recorded. It is a no-op, not a failure.
	ErrDuplicate = errors.New("duplicate event")
	// ErrNotAuthenticated is returned when no user could be resolved for the call
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrStoreUnavailable wraps network and I/O failures from a backing store
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned when the addressed record does not exist
	ErrNotFound = errors.New("not found")
)
