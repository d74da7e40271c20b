// Package aead wraps XChaCha20-Poly1305 for Aeternum's VaultBlob sealing
// and Wire frame encryption. The teacher wraps AES-CCM behind a narrow
// Seal/Open API sized to Matter's constants (pkg/crypto/aesccm.go);
// Aeternum follows the same shape for its own AEAD suite, backed by
// golang.org/x/crypto/chacha20poly1305's NewX constructor instead of a
// hand-rolled CCM implementation (XChaCha20-Poly1305 is not expressible as
// a thin stdlib wrapper the way AES-CCM is).
package aead

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the XChaCha20-Poly1305 key size in bytes.
	KeySize = chacha20poly1305.KeySize

	// NonceSize is the extended (X) nonce size in bytes (24).
	NonceSize = chacha20poly1305.NonceSizeX

	// TagSize is the authentication tag size in bytes.
	TagSize = chacha20poly1305.Overhead
)

// Sealer errors.
var (
	ErrInvalidKeySize   = errors.New("aead: invalid key size, must be 32 bytes")
	ErrInvalidNonceSize = errors.New("aead: invalid nonce size, must be 24 bytes")
	ErrOpenFailed       = errors.New("aead: authentication failed")
	ErrRandFailure      = errors.New("aead: failed to read randomness")
)

// Cipher wraps an XChaCha20-Poly1305 instance bound to one key.
type Cipher struct {
	aead  cipherAEAD
	valid bool
}

// cipherAEAD is the subset of cipher.AEAD this package relies on, named so
// the zero Cipher value fails loudly instead of nil-dereferencing.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewCipher constructs a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: a, valid: true}, nil
}

// GenerateNonce produces a fresh random 24-byte nonce.
func GenerateNonce() ([24]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, ErrRandFailure
	}
	return nonce, nil
}

// Seal encrypts and authenticates plaintext under nonce and aad, returning
// ciphertext || tag (the AEAD round-trip property in spec.md §8 operates
// on this pair with Open).
func (c *Cipher) Seal(nonce [24]byte, plaintext, aad []byte) []byte {
	if !c.valid {
		panic("aead: use of zero-value Cipher")
	}
	return c.aead.Seal(nil, nonce[:], plaintext, aad)
}

// Open verifies and decrypts ciphertext (which must include the trailing
// tag) under nonce and aad. Any single-bit flip in ciphertext, tag, or aad
// causes Open to fail (non-malleability, spec.md §8).
func (c *Cipher) Open(nonce [24]byte, ciphertext, aad []byte) ([]byte, error) {
	if !c.valid {
		panic("aead: use of zero-value Cipher")
	}
	pt, err := c.aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return pt, nil
}

// SplitTag splits a ciphertext produced by Seal into the raw ciphertext
// bytes and its trailing authentication tag.
func SplitTag(sealed []byte) (ciphertext []byte, tag [16]byte, ok bool) {
	if len(sealed) < TagSize {
		return nil, tag, false
	}
	ct := sealed[:len(sealed)-TagSize]
	copy(tag[:], sealed[len(sealed)-TagSize:])
	return ct, tag, true
}

// JoinTag reassembles ciphertext and tag into the single buffer Open
// expects.
func JoinTag(ciphertext []byte, tag [16]byte) []byte {
	out := make([]byte, len(ciphertext)+TagSize)
	copy(out, ciphertext)
	copy(out[len(ciphertext):], tag[:])
	return out
}
