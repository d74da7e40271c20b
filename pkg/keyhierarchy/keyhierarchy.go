// Package keyhierarchy derives Aeternum's key hierarchy from a user
// mnemonic: a 64-byte MasterSeed via PBKDF2-HMAC-SHA512, then a domain-
// separated IdentityKey and RecoveryKey via BLAKE3 derive_key. It also
// mints fresh random DataEncryptionKey and VaultKey material per epoch,
// and derives the Argon2id local-unlock key that guards day-to-day
// access without re-deriving the mnemonic-sourced seed. It follows the
// teacher's pkg/crypto/kdf.go shape (thin, named wrappers around a
// single library call per primitive) generalized from HKDF/PBKDF2-SHA256
// to the domain-separated PBKDF2-SHA512, Argon2id and BLAKE3 derive_key
// this spec requires.
package keyhierarchy

import (
	"crypto/rand"
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/aeternum/vault/internal/config"
	"github.com/aeternum/vault/internal/secret"
	"github.com/aeternum/vault/pkg/pqcrypto"
)

// Sizes in bytes of the keys this package produces.
const (
	MasterSeedSize     = 64
	IdentityKeySize    = 32
	RecoveryKeySize    = 32
	DeviceKeySize      = 16
	DataEncKeySize     = 32
	VaultKeySize       = 32
	mnemonicPBKDFIters = 2048
)

// mnemonicSalt is the fixed BIP-39-style salt prefix used when stretching
// a mnemonic into a MasterSeed. Aeternum does not support BIP-39
// passphrases; the salt is the literal string "mnemonic".
const mnemonicSalt = "mnemonic"

// Identity and recovery key derivation contexts, each forming its own
// domain-separated BLAKE3 derive_key namespace so a seed can never
// produce the same bytes for two different purposes.
const (
	identityKeyContext = "Aeternum_Identity_v1"
	recoveryKeyContext = "Aeternum_Recovery_v1"
)

// DeriveMasterSeed stretches a BIP-39-style mnemonic phrase into a
// 64-byte MasterSeed via PBKDF2-HMAC-SHA512 with 2048 iterations, the
// same construction BIP-39 itself specifies for seed generation. An
// empty mnemonic is rejected as unusable key material.
func DeriveMasterSeed(mnemonic string) (*secret.Bytes, error) {
	if mnemonic == "" {
		return nil, ErrKdfError
	}
	seed := pbkdf2.Key([]byte(mnemonic), []byte(mnemonicSalt), mnemonicPBKDFIters, MasterSeedSize, sha512.New)
	return secret.From(seed), nil
}

// DeriveLocalUnlockKey stretches a passphrase into a key-encryption key
// guarding local access to the already-derived MasterSeed, via Argon2id
// at the supplied parameters (spec.md §5's Argon2id blocking point). This
// is the local-unlock path: it never participates in MasterSeed
// derivation itself, so a compromised device passphrase cannot be used
// to re-derive IK/RK without also recovering the mnemonic-derived seed.
func DeriveLocalUnlockKey(passphrase string, salt []byte, params config.Argon2Params) (*secret.Bytes, error) {
	if passphrase == "" {
		return nil, ErrKdfError
	}
	params = params.WithDefaults()
	key := argon2.IDKey([]byte(passphrase), salt, params.TimeCost, params.MemoryKiB, params.Threads, params.KeyLenByte)
	return secret.From(key), nil
}

// DeriveIdentityKey derives the IdentityKey from a MasterSeed via BLAKE3
// derive_key under the "Aeternum_Identity_v1" context, using the seed as
// both key material and implicit salt (derive_key's context string is
// itself the domain separator).
func DeriveIdentityKey(masterSeed *secret.Bytes) (*secret.Bytes, error) {
	return deriveDomainKey(masterSeed, identityKeyContext, IdentityKeySize)
}

// DeriveRecoveryKey derives the RecoveryKey from a MasterSeed via BLAKE3
// derive_key under the "Aeternum_Recovery_v1" context. It is
// cryptographically independent of the IdentityKey despite sharing the
// same MasterSeed input, by virtue of the distinct context string.
func DeriveRecoveryKey(masterSeed *secret.Bytes) (*secret.Bytes, error) {
	return deriveDomainKey(masterSeed, recoveryKeyContext, RecoveryKeySize)
}

func deriveDomainKey(masterSeed *secret.Bytes, context string, outLen int) (*secret.Bytes, error) {
	if masterSeed == nil || masterSeed.Len() != MasterSeedSize {
		return nil, ErrInvalidLength
	}
	out, err := pqcrypto.Blake3DeriveKey(context, masterSeed.Bytes(), outLen)
	if err != nil {
		return nil, err
	}
	return secret.From(out), nil
}

// GenerateDataEncryptionKey mints a fresh random 32-byte DEK. Unlike
// IdentityKey and RecoveryKey, the DEK is never derived from the
// mnemonic: a fresh DEK per epoch bounds the blast radius of any single
// epoch's compromise (spec.md §4.1).
func GenerateDataEncryptionKey() (*secret.Bytes, error) {
	return randomKey(DataEncKeySize)
}

// GenerateVaultKey mints a fresh random 32-byte VK, the AEAD key user
// data is sealed under for one epoch (the VK itself is wrapped under the
// DEK).
func GenerateVaultKey() (*secret.Bytes, error) {
	return randomKey(VaultKeySize)
}

func randomKey(n int) (*secret.Bytes, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, ErrKdfError
	}
	s := secret.From(buf)
	for i := range buf {
		buf[i] = 0
	}
	return s, nil
}
