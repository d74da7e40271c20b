// Package session implements Aeternum Wire's per-connection send/receive
// state: the session key, current epoch, and replay-suppression nonce
// memory, all under a single lock for the duration of one send or
// receive (spec.md §5). It plays the same structural role as the
// teacher's pkg/session secure context (encrypt/decrypt plus a replay
// counter under a mutex) but tracks replay via a nonce set instead of a
// monotonic counter, since Wire frames carry random 24-byte nonces
// rather than sequence numbers.
package session

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"

	"github.com/aeternum/vault/pkg/aead"
	"github.com/aeternum/vault/pkg/wire/frame"
)

// Errors surfaced to callers, matching the bridge-facing kinds in
// spec.md §6.
var (
	ErrEpochRegression   = errors.New("session: epoch regression")
	ErrInvalidFrameSize  = errors.New("session: plaintext exceeds MAX_BODY")
	ErrReplayAttack      = errors.New("session: nonce previously seen")
	ErrAuthenticationFailed = errors.New("session: AEAD authentication failed")
)

// MaxBody is the largest plaintext send_message will accept, matching
// frame.MaxBodyLen (the AEAD tag is carried in the frame's own field,
// not inside the body).
const MaxBody = frame.MaxBodyLen

// Session holds one Wire connection's live cryptographic state.
type Session struct {
	mu           sync.Mutex
	cipher       *aead.Cipher
	currentEpoch uint32
	nonceMemory  map[[24]byte]bool
	degraded     bool
}

// New constructs a Session bound to sessionKey, starting at initialEpoch.
func New(sessionKey [32]byte, initialEpoch uint32) (*Session, error) {
	c, err := aead.NewCipher(sessionKey[:])
	if err != nil {
		return nil, err
	}
	return &Session{
		cipher:       c,
		currentEpoch: initialEpoch,
		nonceMemory:  make(map[[24]byte]bool),
	}, nil
}

// SetDegraded toggles whether this session is in the PQRR-degraded
// state. Veto and Recovery payloads remain dispatchable in this state;
// all other payload types are blocked by the caller before reaching
// SendMessage/ReceiveMessage.
func (s *Session) SetDegraded(degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = degraded
}

// Degraded reports whether the session is currently in degraded mode.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// SendMessage encrypts plaintext under a fresh random nonce and encodes
// it into a fixed 8192-byte frame, then advances current_epoch to epoch
// on success.
func (s *Session) SendMessage(payloadType frame.PayloadType, plaintext []byte, epoch uint32) ([frame.FrameSize]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out [frame.FrameSize]byte
	if epoch < s.currentEpoch {
		return out, ErrEpochRegression
	}
	if len(plaintext) > MaxBody {
		return out, ErrInvalidFrameSize
	}

	nonce, err := aead.GenerateNonce()
	if err != nil {
		return out, err
	}
	sealed := s.cipher.Seal(nonce, plaintext, nil)
	ciphertext, tag, ok := aead.SplitTag(sealed)
	if !ok {
		return out, ErrAuthenticationFailed
	}

	paddingLen := frame.FrameSize - 24 - 4 - 1 - 2 - len(ciphertext) - 16
	padding := make([]byte, paddingLen)
	if _, err := io.ReadFull(rand.Reader, padding); err != nil {
		return out, err
	}

	f := frame.Frame{Nonce: nonce, Epoch: epoch, PayloadType: payloadType, Body: ciphertext, AuthTag: tag}
	out, err = frame.Encode(f, padding)
	if err != nil {
		return out, err
	}

	s.currentEpoch = epoch
	return out, nil
}

// ReceiveMessage decodes a frame, checks replay and epoch monotonicity,
// and AEAD-decrypts the body. Veto frames in a degraded session are
// dispatched without the usual non-degraded-state requirement; this
// function performs no such gating itself, leaving payload-type
// dispatch to the caller, which already knows whether the session is
// degraded.
func (s *Session) ReceiveMessage(buf []byte) (frame.PayloadType, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := frame.Decode(buf)
	if err != nil {
		return 0, nil, err
	}
	if s.nonceMemory[f.Nonce] {
		return 0, nil, ErrReplayAttack
	}
	if f.Epoch < s.currentEpoch {
		return 0, nil, ErrEpochRegression
	}

	sealed := aead.JoinTag(f.Body, f.AuthTag)
	plaintext, err := s.cipher.Open(f.Nonce, sealed, nil)
	if err != nil {
		return 0, nil, ErrAuthenticationFailed
	}

	s.nonceMemory[f.Nonce] = true
	s.currentEpoch = f.Epoch
	return f.PayloadType, plaintext, nil
}

// RotateKey clears the nonce memory and rebinds the session to a fresh
// key. This is the only way nonce_memory is ever cleared, per spec.md
// §4.10.
func (s *Session) RotateKey(newKey [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := aead.NewCipher(newKey[:])
	if err != nil {
		return err
	}
	s.cipher = c
	s.nonceMemory = make(map[[24]byte]bool)
	return nil
}

// CurrentEpoch returns the session's current epoch under lock.
func (s *Session) CurrentEpoch() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentEpoch
}
