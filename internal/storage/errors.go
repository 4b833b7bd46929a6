package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidTransition is returned when a status-conditional update
	// finds the row in a different state than the transition requires.
	// Callers racing on the same row use this to detect that another
	// writer won.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
