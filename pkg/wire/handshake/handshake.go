// Package handshake implements Aeternum's hybrid X25519+Kyber-1024
// handshake, deriving a 32-byte session key for pkg/wire/session. It is
// grounded on the teacher's pkg/securechannel/case session
// establishment (fresh ephemerals, a two-message exchange, a derived
// session key) generalized from Matter's CASE/NIST-P256 exchange to a
// post-quantum hybrid KEM.
package handshake

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"

	"github.com/aeternum/vault/pkg/pqcrypto"
)

// SessionKeyContext is the BLAKE3 derive_key context for the final
// session key, distinct from the hybrid-KEX combiner context so a
// transcript's secret cannot be confused with its derived session key.
const SessionKeyContext = "aeternum v5 hybrid-handshake session-key"

// ContextIDSize is the fixed size of the handshake's context
// identifier, echoed unchanged by both parties.
const ContextIDSize = 32

// kyberPublicKeySize and kyberCiphertextSize mirror pkg/epoch's
// dependency-free copies of pqcrypto's Kyber-1024 constants: message
// struct field sizes must be compile-time constants, while pqcrypto
// derives its sizes from circl at init time, so this package keeps its
// own literal and relies on pqcrypto's init-time assertion to catch any
// drift.
const (
	kyberPublicKeySize  = 1568
	kyberCiphertextSize = 1568
)

var (
	ErrInvalidMessageSize = errors.New("handshake: malformed message size")
	ErrContextIDMismatch  = errors.New("handshake: context_id did not round-trip")
)

// InitiatorState holds an initiator's ephemeral secrets between sending
// the first message and processing the responder's reply.
type InitiatorState struct {
	x25519Secret [32]byte
	kyberKeyPair *pqcrypto.KyberKeyPair
	contextID    [ContextIDSize]byte
}

// InitiatorHello is the initiator's first message:
// pk_x25519 || pk_kyber (1600 B total) plus a 32-byte context_id.
type InitiatorHello struct {
	PkCombined [32 + kyberPublicKeySize]byte
	ContextID  [ContextIDSize]byte
}

// BeginInitiator generates fresh X25519 and Kyber-1024 ephemerals and
// produces the first handshake message.
func BeginInitiator() (*InitiatorState, InitiatorHello, error) {
	return beginInitiatorWithReader(rand.Reader)
}

func beginInitiatorWithReader(rng io.Reader) (*InitiatorState, InitiatorHello, error) {
	var hello InitiatorHello

	x25519Pub, x25519Sec, err := pqcrypto.GenerateX25519KeyPairWithReader(rng)
	if err != nil {
		return nil, hello, err
	}
	kyberKP, err := pqcrypto.GenerateKyberKeyPairWithReader(rng)
	if err != nil {
		return nil, hello, err
	}
	var contextID [ContextIDSize]byte
	if _, err := io.ReadFull(rng, contextID[:]); err != nil {
		return nil, hello, err
	}

	copy(hello.PkCombined[:32], x25519Pub[:])
	copy(hello.PkCombined[32:], kyberKP.PublicKey)
	hello.ContextID = contextID

	st := &InitiatorState{contextID: contextID, kyberKeyPair: kyberKP}
	copy(st.x25519Secret[:], x25519Sec[:])
	return st, hello, nil
}

// ResponderReply is the responder's message: pk_responder_x25519 ||
// ct_kem || context_id.
type ResponderReply struct {
	PkResponderX25519 [32]byte
	CtKem             [kyberCiphertextSize]byte
	ContextID         [ContextIDSize]byte
}

// RespondToHello processes an InitiatorHello: generates a fresh X25519
// ephemeral, Kyber-encapsulates against the initiator's Kyber public
// key, computes the ECDH shared secret, and derives the 32-byte session
// key.
func RespondToHello(hello InitiatorHello) (sessionKey [32]byte, reply ResponderReply, err error) {
	return respondToHelloWithReader(hello, rand.Reader)
}

func respondToHelloWithReader(hello InitiatorHello, rng io.Reader) (sessionKey [32]byte, reply ResponderReply, err error) {
	pkX25519 := hello.PkCombined[:32]
	pkKyber := hello.PkCombined[32:]

	respPub, respSec, err := pqcrypto.GenerateX25519KeyPairWithReader(rng)
	if err != nil {
		return sessionKey, reply, err
	}
	ctKem, ssKem, err := pqcrypto.KyberEncapsulate(pkKyber)
	if err != nil {
		return sessionKey, reply, err
	}
	ssEcdh, err := pqcrypto.X25519SharedSecret(respSec[:], pkX25519)
	if err != nil {
		return sessionKey, reply, err
	}

	sessionKey, err = deriveSessionKey(ssEcdh, ssKem, hello.ContextID[:])
	if err != nil {
		return sessionKey, reply, err
	}

	copy(reply.PkResponderX25519[:], respPub[:])
	copy(reply.CtKem[:], ctKem)
	reply.ContextID = hello.ContextID
	return sessionKey, reply, nil
}

// FinishInitiator decapsulates the responder's ciphertext with the
// initiator's Kyber secret, computes its own X25519 shared secret with
// the responder's ephemeral public key, and derives the session key. It
// verifies the context_id round-tripped unchanged.
func FinishInitiator(st *InitiatorState, reply ResponderReply) ([32]byte, error) {
	var sessionKey [32]byte
	if !bytes.Equal(st.contextID[:], reply.ContextID[:]) {
		return sessionKey, ErrContextIDMismatch
	}

	ssKem, err := pqcrypto.KyberDecapsulate(st.kyberKeyPair.SecretKey, reply.CtKem[:])
	if err != nil {
		return sessionKey, err
	}
	ssEcdh, err := pqcrypto.X25519SharedSecret(st.x25519Secret[:], reply.PkResponderX25519[:])
	if err != nil {
		return sessionKey, err
	}
	return deriveSessionKey(ssEcdh, ssKem, st.contextID[:])
}

func deriveSessionKey(ssEcdh, ssKem, contextID []byte) ([32]byte, error) {
	var out [32]byte
	input := make([]byte, 0, len(ssEcdh)+len(ssKem)+len(contextID))
	input = append(input, ssEcdh...)
	input = append(input, ssKem...)
	input = append(input, contextID...)

	derived, err := pqcrypto.Blake3DeriveKey(SessionKeyContext, input, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], derived)
	return out, nil
}
