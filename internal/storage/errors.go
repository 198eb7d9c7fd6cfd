package storage

import "errors"

// Storage errors shared by all ledger and store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to create a record
	// at an address that is already taken.
	ErrDuplicateKey = errors.New("duplicate key: address already in use")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
