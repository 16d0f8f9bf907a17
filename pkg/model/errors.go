package model

import "errors"

// Pipeline error taxonomy. All three surface to the originating client via
// the acknowledgment channel and are never raised toward other clients.
var (
	// ErrUnauthorized rejects operations on a connection with no bound
	// identity.
	ErrUnauthorized = errors.New("Unauthorized")

	// ErrInvalidInput rejects a missing conversation id or blank text.
	ErrInvalidInput = errors.New("Invalid message data")

	// ErrPersistence masks storage failures with a generic reason; details
	// stay in the server log.
	ErrPersistence = errors.New("Failed to save message")
)
