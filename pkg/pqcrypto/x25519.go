package pqcrypto

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519KeySize is the size of an X25519 scalar or point in bytes.
const X25519KeySize = 32

// all-zero shared secret buffer, compared against to reject low-order
// points per RFC 7748 §6.1.
var x25519AllZero [X25519KeySize]byte

// GenerateX25519KeyPair generates a fresh X25519 ephemeral key pair.
func GenerateX25519KeyPair() (publicKey, secretKey []byte, err error) {
	return GenerateX25519KeyPairWithReader(rand.Reader)
}

// GenerateX25519KeyPairWithReader generates an X25519 key pair using the
// supplied randomness source. Exposed for deterministic tests.
func GenerateX25519KeyPairWithReader(rng io.Reader) (publicKey, secretKey []byte, err error) {
	secretKey = make([]byte, X25519KeySize)
	if _, err := io.ReadFull(rng, secretKey); err != nil {
		return nil, nil, ErrRandFailure
	}
	publicKey, err = curve25519.X25519(secretKey, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return publicKey, secretKey, nil
}

// X25519SharedSecret computes the X25519 Diffie-Hellman shared secret and
// rejects the all-zero low-order-point output per RFC 7748 §6.1, which
// would otherwise silently hand every peer the same "shared" secret.
func X25519SharedSecret(secretKey, peerPublicKey []byte) ([]byte, error) {
	ss, err := curve25519.X25519(secretKey, peerPublicKey)
	if err != nil {
		return nil, err
	}
	if subtleEqual(ss, x25519AllZero[:]) {
		return nil, ErrLowOrderPoint
	}
	return ss, nil
}

func subtleEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
