package keyhierarchy

import "errors"

// keyhierarchy package errors.
var (
	// ErrKdfError is returned when the mnemonic is unusable for derivation
	// (e.g. empty).
	ErrKdfError = errors.New("keyhierarchy: invalid mnemonic for key derivation")

	// ErrInvalidLength is returned when a derived key does not have the
	// expected length.
	ErrInvalidLength = errors.New("keyhierarchy: derived key has invalid length")
)
