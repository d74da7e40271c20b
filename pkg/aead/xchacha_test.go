package aead

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

func mustKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		t.Fatalf("key: %v", err)
	}
	return key
}

func TestAEADRoundTrip(t *testing.T) {
	c, err := NewCipher(mustKey(t))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	aad := []byte("header-aad")

	sealed := c.Seal(nonce, plaintext, aad)
	got, err := c.Open(nonce, sealed, aad)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestAEADTagNonMalleability(t *testing.T) {
	c, err := NewCipher(mustKey(t))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	plaintext := []byte("do not tamper with me")
	aad := []byte("aad")
	sealed := c.Seal(nonce, plaintext, aad)

	for i := range sealed {
		tampered := append([]byte{}, sealed...)
		tampered[i] ^= 0x01
		if _, err := c.Open(nonce, tampered, aad); err == nil {
			t.Fatalf("Open succeeded after flipping bit in byte %d", i)
		}
	}

	tamperedAAD := append([]byte{}, aad...)
	tamperedAAD[0] ^= 0x01
	if _, err := c.Open(nonce, sealed, tamperedAAD); err == nil {
		t.Fatal("Open succeeded after tampering with AAD")
	}
}

func TestSplitJoinTag(t *testing.T) {
	c, err := NewCipher(mustKey(t))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	nonce, _ := GenerateNonce()
	sealed := c.Seal(nonce, []byte("payload"), nil)

	ct, tag, ok := SplitTag(sealed)
	if !ok {
		t.Fatal("SplitTag failed")
	}
	rejoined := JoinTag(ct, tag)
	if !bytes.Equal(rejoined, sealed) {
		t.Fatal("split/join round trip mismatch")
	}
}

func TestNewCipherRejectsBadKeySize(t *testing.T) {
	if _, err := NewCipher(make([]byte, 10)); err != ErrInvalidKeySize {
		t.Fatalf("expected ErrInvalidKeySize, got %v", err)
	}
}
