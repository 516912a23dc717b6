package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrInvalidRole is returned when a message carries an unknown role.
	ErrInvalidRole = errors.New("invalid message role")
)
