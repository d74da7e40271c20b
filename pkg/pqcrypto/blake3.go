package pqcrypto

import (
	"io"

	"lukechampine.com/blake3"
)

// Blake3Hash256 returns the 32-byte BLAKE3 hash of data.
func Blake3Hash256(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// Blake3DeriveKey implements BLAKE3's domain-separated derive_key mode:
// DeriveKey(context, keyMaterial, outLen) ~= HKDF-like KDF, but collision
// resistant in the context string. Every call site in Aeternum that needs
// a domain-separated subkey (IK, RK, the hybrid KEX combiner, the
// handshake session key) goes through this single function so the context
// strings stay auditable in one place's callers.
func Blake3DeriveKey(context string, keyMaterial []byte, outLen int) ([]byte, error) {
	h := blake3.NewDeriveKey(context)
	if _, err := h.Write(keyMaterial); err != nil {
		return nil, err
	}
	out := make([]byte, outLen)
	if _, err := io.ReadFull(h.XOF(), out); err != nil {
		return nil, err
	}
	return out, nil
}
