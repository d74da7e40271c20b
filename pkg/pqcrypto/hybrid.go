package pqcrypto

import "bytes"

// HybridKEXContext is the domain-separation context for combining the
// classical and post-quantum shared secrets of the hybrid handshake's key
// exchange step (spec.md §4.1). Ordering is fixed: X25519 first, Kyber
// second.
const HybridKEXContext = "aeternum v5 hybrid-kex kyber1024+x25519"

// CombineHybridSecret derives the 64-byte combined secret from an X25519
// shared secret and a Kyber-1024 shared secret, in that fixed order. The
// combiner is collision resistant via BLAKE3's derive_key context binding,
// so the result is provably not the naive concatenation of its inputs.
func CombineHybridSecret(x25519SS, kyberSS []byte) ([]byte, error) {
	input := make([]byte, 0, len(x25519SS)+len(kyberSS))
	input = append(input, x25519SS...)
	input = append(input, kyberSS...)
	return Blake3DeriveKey(HybridKEXContext, input, 64)
}

// IsNaiveConcatenation reports whether combined equals the raw
// concatenation of its two inputs. Used by tests to enforce the "hybrid
// non-concatenation" testable property from spec.md §8.
func IsNaiveConcatenation(combined, x25519SS, kyberSS []byte) bool {
	naive := append(append([]byte{}, x25519SS...), kyberSS...)
	return bytes.Equal(combined, naive)
}
