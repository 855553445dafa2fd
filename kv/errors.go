package kv

import "errors"

var (
	// ErrCheckFailed is returned by Commit when a staged check did not hold.
	ErrCheckFailed = errors.New("kv: check failed")

	// ErrConflict is returned by Commit when the store aborted the
	// transaction because of a concurrent write.
	ErrConflict = errors.New("kv: transaction conflict")

	// ErrUnsupportedKeyPart is returned when a key part has a type that
	// cannot be encoded.
	ErrUnsupportedKeyPart = errors.New("kv: unsupported key part")

	// ErrInvalidKey is returned when packed key bytes cannot be decoded.
	ErrInvalidKey = errors.New("kv: invalid key encoding")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("kv: store closed")
)
