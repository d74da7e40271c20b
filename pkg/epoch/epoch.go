// Package epoch implements Aeternum's immutable data model: CryptoEpoch,
// DeviceId, DeviceStatus, Role, Operation, DeviceHeader, VaultBlob and the
// fixed 32-byte VaultHeader. It mirrors the teacher's pkg/message (header
// framing) and pkg/fabric (identity value types) in shape: small,
// dependency-free value types with an Encode/Decode pair and a closed set
// of named constants.
package epoch

import (
	"encoding/binary"
	"errors"
)

// Algorithm identifies the cryptographic algorithm set bound to an epoch.
type Algorithm uint8

// The only algorithm set defined so far. Future algorithm additions are the
// only forward-compatible surface for this enum (spec.md §9).
const (
	AlgorithmV1 Algorithm = 1
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmV1:
		return "V1"
	default:
		return "Unknown"
	}
}

// CryptoEpoch is a monotonic version identifier bound to an algorithm set
// and a timestamp. It is immutable once created; a plain value, freely
// copied.
type CryptoEpoch struct {
	Version     uint64
	TimestampMs uint64
	Algorithm   Algorithm
}

// NewGenesisEpoch returns the first epoch (version 1) for a fresh vault.
func NewGenesisEpoch(timestampMs uint64) CryptoEpoch {
	return CryptoEpoch{Version: 1, TimestampMs: timestampMs, Algorithm: AlgorithmV1}
}

// Next returns the successor epoch: version+1, at the same or a later
// timestamp. It never mutates e.
func (e CryptoEpoch) Next(timestampMs uint64) CryptoEpoch {
	if timestampMs < e.TimestampMs {
		timestampMs = e.TimestampMs
	}
	return CryptoEpoch{
		Version:     e.Version + 1,
		TimestampMs: timestampMs,
		Algorithm:   e.Algorithm,
	}
}

// DeviceIdSize is the fixed length of a DeviceId.
const DeviceIdSize = 16

// DeviceId is 16 opaque bytes identifying a device sharing the vault.
type DeviceId [DeviceIdSize]byte

// ShadowAnchor is the all-zero DeviceId representing the cold-recovery
// anchor (Device_0). It is intentionally indistinguishable on the wire
// from a regular device id.
var ShadowAnchor DeviceId

// IsShadowAnchor reports whether id is the all-zero shadow anchor.
func (id DeviceId) IsShadowAnchor() bool {
	return id == ShadowAnchor
}

// DeviceStatus is the lifecycle state of a device within the vault.
type DeviceStatus uint8

const (
	DeviceStatusActive DeviceStatus = iota + 1
	DeviceStatusRevoked
	DeviceStatusDegraded
)

func (s DeviceStatus) String() string {
	switch s {
	case DeviceStatusActive:
		return "Active"
	case DeviceStatusRevoked:
		return "Revoked"
	case DeviceStatusDegraded:
		return "Degraded"
	default:
		return "Unknown"
	}
}

// Role is the privilege level an actor holds when invoking an operation.
type Role uint8

const (
	RoleAuthorized Role = iota + 1
	RoleRecovery
)

func (r Role) String() string {
	switch r {
	case RoleAuthorized:
		return "Authorized"
	case RoleRecovery:
		return "Recovery"
	default:
		return "Unknown"
	}
}

// Operation is a named management or data-plane action gated by a Role.
type Operation uint8

const (
	OpSigmaRotate Operation = iota + 1
	OpRevokeDevice
	OpRegisterDevice
	OpInitiateRecovery
	OpVeto
	OpDecryptField
)

func (op Operation) String() string {
	switch op {
	case OpSigmaRotate:
		return "SigmaRotate"
	case OpRevokeDevice:
		return "RevokeDevice"
	case OpRegisterDevice:
		return "RegisterDevice"
	case OpInitiateRecovery:
		return "InitiateRecovery"
	case OpVeto:
		return "Veto"
	case OpDecryptField:
		return "DecryptField"
	default:
		return "Unknown"
	}
}

// roleCapabilities maps each Role to the set of Operations it may invoke.
// Recovery cannot perform SigmaRotate or other management operations
// (Invariant #3, spec.md §3).
var roleCapabilities = map[Role]map[Operation]bool{
	RoleAuthorized: {
		OpSigmaRotate:      true,
		OpRevokeDevice:     true,
		OpRegisterDevice:   true,
		OpInitiateRecovery: true,
		OpVeto:             true,
		OpDecryptField:     true,
	},
	RoleRecovery: {
		OpInitiateRecovery: true,
		OpVeto:             true,
		OpDecryptField:     true,
	},
}

// Allows reports whether role may invoke op, per the role-capability table.
func Allows(role Role, op Operation) bool {
	ops, ok := roleCapabilities[role]
	if !ok {
		return false
	}
	return ops[op]
}

// KyberPublicKeySize and KyberCiphertextSize are the wire sizes for
// DeviceHeader's Kyber-1024 fields, per spec.md §9 (1568 bytes is
// authoritative). Defined here (rather than importing pkg/pqcrypto) to
// keep the data model dependency-free; pkg/pqcrypto asserts at init time
// that circl's Kyber-1024 sizes equal this same 1568.
const (
	KyberPublicKeySize  = 1568
	KyberCiphertextSize = 1568
)

// DeviceHeader binds a device's Kyber-1024 public key and its DEK wrapping
// ciphertext to a specific epoch. Created at registration or at each epoch
// upgrade; mutated only via status transition; destroyed when the device
// is fully purged after its revocation window.
type DeviceHeader struct {
	DeviceID     DeviceId
	Epoch        CryptoEpoch
	Status       DeviceStatus
	PublicKey    [KyberPublicKeySize]byte
	EncryptedDEK [KyberCiphertextSize]byte
}

// VaultBlob encodes the encrypted user data sealed under the VK of its
// epoch.
type VaultBlob struct {
	BlobVersion uint32
	Epoch       CryptoEpoch
	Ciphertext  []byte
	AuthTag     [16]byte
	Nonce       [24]byte
}

// CurrentBlobVersion is the newest blob format this build can write.
const CurrentBlobVersion = 1

var (
	// ErrBlobVersionTooNew is returned when a VaultBlob claims a format
	// version newer than this build understands.
	ErrBlobVersionTooNew = errors.New("epoch: vault blob version exceeds CURRENT")
)

// Validate checks the VaultBlob's structural invariants: auth_tag.len=16,
// nonce.len=24 (enforced by the fixed-size array types) and
// blob_version <= CURRENT.
func (b VaultBlob) Validate() error {
	if b.BlobVersion > CurrentBlobVersion {
		return ErrBlobVersionTooNew
	}
	return nil
}

// VaultHeaderSize is the fixed on-disk size of a VaultHeader.
const VaultHeaderSize = 32

// vaultMagic is the fixed 8-byte on-disk magic value, NUL-padded.
var vaultMagic = [8]byte{'A', 'E', 'T', 'E', 'R', 'N', 'M', 0}

// VaultHeader is the 32-byte fixed header prefixed to the serialized
// VaultBlob on disk (spec.md §3, §6).
type VaultHeader struct {
	BlobVersion  uint32
	EpochVersion uint64
	DataLength   uint64
}

// ErrInvalidVaultHeader is returned when decoding an on-disk header whose
// magic or size does not match the expected layout.
var ErrInvalidVaultHeader = errors.New("epoch: invalid vault header")

// Encode serializes the header to exactly VaultHeaderSize bytes:
// magic(8) || blob_version(4 BE) || epoch_version(8 BE) || data_length(8 BE) || reserved(4).
func (h VaultHeader) Encode() [VaultHeaderSize]byte {
	var out [VaultHeaderSize]byte
	copy(out[0:8], vaultMagic[:])
	binary.BigEndian.PutUint32(out[8:12], h.BlobVersion)
	binary.BigEndian.PutUint64(out[12:20], h.EpochVersion)
	binary.BigEndian.PutUint64(out[20:28], h.DataLength)
	// out[28:32] reserved, left zero.
	return out
}

// DecodeVaultHeader parses a VaultHeaderSize-byte buffer produced by Encode.
func DecodeVaultHeader(buf []byte) (VaultHeader, error) {
	if len(buf) != VaultHeaderSize {
		return VaultHeader{}, ErrInvalidVaultHeader
	}
	if string(buf[0:8]) != string(vaultMagic[:]) {
		return VaultHeader{}, ErrInvalidVaultHeader
	}
	return VaultHeader{
		BlobVersion:  binary.BigEndian.Uint32(buf[8:12]),
		EpochVersion: binary.BigEndian.Uint64(buf[12:20]),
		DataLength:   binary.BigEndian.Uint64(buf[20:28]),
	}, nil
}
