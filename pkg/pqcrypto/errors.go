package pqcrypto

import "errors"

// pqcrypto package errors.
var (
	// ErrInvalidPublicKey is returned when a Kyber-1024 public key has the
	// wrong length or fails to unmarshal.
	ErrInvalidPublicKey = errors.New("pqcrypto: invalid Kyber-1024 public key")

	// ErrInvalidPrivateKey is returned when a Kyber-1024 private key has the
	// wrong length or fails to unmarshal.
	ErrInvalidPrivateKey = errors.New("pqcrypto: invalid Kyber-1024 private key")

	// ErrInvalidCiphertext is returned when a Kyber-1024 ciphertext has the
	// wrong length.
	ErrInvalidCiphertext = errors.New("pqcrypto: invalid Kyber-1024 ciphertext")

	// ErrDecapsulationFailed is returned when Kyber-1024 decapsulation fails.
	ErrDecapsulationFailed = errors.New("pqcrypto: Kyber-1024 decapsulation failed")

	// ErrLowOrderPoint is returned when an X25519 peer public key produces an
	// all-zero shared secret (RFC 7748 §6.1 low-order point rejection).
	ErrLowOrderPoint = errors.New("pqcrypto: X25519 shared secret is the all-zero low-order point")

	// ErrRandFailure is returned when reading fresh randomness fails.
	ErrRandFailure = errors.New("pqcrypto: failed to read randomness")
)
