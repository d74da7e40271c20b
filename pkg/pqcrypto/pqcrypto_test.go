package pqcrypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/curve25519"
)

// RFC 7748 X25519 test vector, per spec.md §8 scenario 1.
func TestX25519RFC7748Vector(t *testing.T) {
	aliceSecret, err := hex.DecodeString("77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a")
	if err != nil {
		t.Fatalf("fixture decode: %v", err)
	}
	bobSecret, err := hex.DecodeString("5dab087e624a8a4b79e17f8b83800ee66f3bb1292618b6fd1c2f8b27ff88e0eb")
	if err != nil {
		t.Fatalf("fixture decode: %v", err)
	}

	alicePub, err := x25519PublicFromSecret(aliceSecret)
	if err != nil {
		t.Fatalf("alice public: %v", err)
	}
	bobPub, err := x25519PublicFromSecret(bobSecret)
	if err != nil {
		t.Fatalf("bob public: %v", err)
	}

	aliceShared, err := X25519SharedSecret(aliceSecret, bobPub)
	if err != nil {
		t.Fatalf("alice shared: %v", err)
	}
	bobShared, err := X25519SharedSecret(bobSecret, alicePub)
	if err != nil {
		t.Fatalf("bob shared: %v", err)
	}
	if !bytes.Equal(aliceShared, bobShared) {
		t.Fatal("X25519 shared secrets disagree")
	}

	want, err := hex.DecodeString("4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742")
	if err != nil {
		t.Fatalf("fixture decode: %v", err)
	}
	if !bytes.Equal(aliceShared, want) {
		t.Fatalf("shared secret mismatch: got %x want %x", aliceShared, want)
	}
}

func x25519PublicFromSecret(secret []byte) ([]byte, error) {
	return curve25519.X25519(secret, curve25519.Basepoint)
}

func TestX25519RejectsLowOrderPoint(t *testing.T) {
	secretKey := make([]byte, X25519KeySize)
	secretKey[0] = 1
	if _, err := X25519SharedSecret(secretKey, x25519AllZero[:]); err != ErrLowOrderPoint {
		t.Fatalf("expected ErrLowOrderPoint, got %v", err)
	}
}

// spec.md §8: BLAKE3 empty-input vector.
func TestBlake3EmptyInputVector(t *testing.T) {
	got := Blake3Hash256(nil)
	want, _ := hex.DecodeString("af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262")
	if len(want) != 32 {
		t.Fatalf("test vector fixture malformed: %d bytes", len(want))
	}
	if !bytes.Equal(got[:], want) {
		t.Fatalf("BLAKE3(\"\") mismatch: got %x want %x", got, want)
	}
}

func TestHybridNonConcatenation(t *testing.T) {
	x := bytes.Repeat([]byte{0xAA}, X25519KeySize)
	k := bytes.Repeat([]byte{0xBB}, KyberSharedKeySize)

	combined, err := CombineHybridSecret(x, k)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if len(combined) != 64 {
		t.Fatalf("combined length = %d, want 64", len(combined))
	}
	if IsNaiveConcatenation(combined, x, k) {
		t.Fatal("combined hybrid secret must not equal naive concatenation")
	}
}

func TestKyberRoundTrip(t *testing.T) {
	kp, err := GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if len(kp.PublicKey) != KyberPublicKeySize {
		t.Fatalf("public key size = %d, want %d", len(kp.PublicKey), KyberPublicKeySize)
	}

	ct, ss1, err := KyberEncapsulate(kp.PublicKey)
	if err != nil {
		t.Fatalf("encapsulate: %v", err)
	}
	if len(ct) != KyberCiphertextSize {
		t.Fatalf("ciphertext size = %d, want %d", len(ct), KyberCiphertextSize)
	}

	ss2, err := KyberDecapsulate(kp.SecretKey, ct)
	if err != nil {
		t.Fatalf("decapsulate: %v", err)
	}
	if !bytes.Equal(ss1, ss2) {
		t.Fatal("encapsulate/decapsulate shared secrets disagree")
	}
}

func TestKyberEncapsulateRejectsBadPublicKeySize(t *testing.T) {
	if _, _, err := KyberEncapsulate(make([]byte, 10)); err != ErrInvalidPublicKey {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}
