package keyset

import "errors"

// Errors returned by key and keyset operations.
var (
	// ErrInvalidName indicates a key name is not well-formed.
	ErrInvalidName = errors.New("invalid key name")

	// ErrKeyNotFound indicates the requested key does not exist.
	ErrKeyNotFound = errors.New("key not found")
)
