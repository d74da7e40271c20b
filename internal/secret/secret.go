// Package secret provides zero-on-release buffers for key material.
//
// Every secret-bearing value in Aeternum (master seed, identity/recovery
// keys, DEK/VK, session keys) is stored in a Bytes so that callers get a
// single, auditable place where "wipe on every exit path" is guaranteed
// instead of re-implementing it ad hoc per type.
package secret

import "fmt"

// Bytes is an owned, zeroable byte buffer for secret material.
// The zero value is not usable; construct with New or From.
type Bytes struct {
	b        []byte
	released bool
}

// New allocates a Bytes of the given length, zero-initialized.
func New(n int) *Bytes {
	return &Bytes{b: make([]byte, n)}
}

// From copies src into a new owned Bytes. The caller remains responsible
// for wiping src itself; From does not take ownership of the source slice.
func From(src []byte) *Bytes {
	b := make([]byte, len(src))
	copy(b, src)
	return &Bytes{b: b}
}

// Bytes returns the underlying slice. The returned slice aliases the
// Bytes' storage and becomes invalid after Release.
func (s *Bytes) Bytes() []byte {
	if s == nil || s.released {
		return nil
	}
	return s.b
}

// Len reports the buffer length.
func (s *Bytes) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Release overwrites the backing array with zeros. Safe to call more than
// once and on a nil receiver. Every owner of a Bytes must call Release on
// every exit path (normal return, error, panic via defer).
func (s *Bytes) Release() {
	if s == nil || s.released {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.released = true
}

// Released reports whether Release has already run. Intended for tests
// that need to assert the zero-on-release property without poking at the
// backing array directly.
func (s *Bytes) Released() bool {
	return s == nil || s.released
}

// UnsafeReadForTest exposes the raw backing array for verifying the
// zero-on-release property in tests. Production code must never call this.
func (s *Bytes) UnsafeReadForTest() []byte {
	return s.b
}

// String never renders secret bytes, even accidentally via %v/%s.
func (s *Bytes) String() string {
	if s == nil {
		return "<secret nil>"
	}
	if s.released {
		return "<secret released>"
	}
	return fmt.Sprintf("<redacted %dB>", len(s.b))
}

// GoString mirrors String so %#v also redacts.
func (s *Bytes) GoString() string {
	return s.String()
}
