package session

import "errors"

var (
	// ErrNotFound is returned for operations on an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidState is returned when a command is not valid for the
	// session's current state. The wrapping error names that state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrCapacityExceeded is returned by Create when the count of
	// non-terminal sessions has reached the configured limit.
	ErrCapacityExceeded = errors.New("session capacity exceeded")
)
