// Package bridge exposes the sanitized UI surface spec.md §6 describes:
// open an engine handle over an initialized PQRR machine, list devices, open a
// session, decrypt a single field, lock, and drive recovery/revocation.
// No key bytes ever cross this boundary. It plays the role the
// teacher's pkg/session manager.go plays for a Matter commissioner UI:
// a thin, locked façade in front of stateful protocol machinery.
package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/aeternum/vault/internal/secret"
	"github.com/aeternum/vault/pkg/aead"
	"github.com/aeternum/vault/pkg/epoch"
	"github.com/aeternum/vault/pkg/pqrr"
	"github.com/aeternum/vault/pkg/wire/frame"
	"github.com/aeternum/vault/pkg/wire/session"
)

// Errors surfaced to the bridge, matching spec.md §6's listed kinds that
// originate at this layer rather than below it.
var (
	ErrSessionLocked     = errors.New("bridge: session is locked")
	ErrSessionNotOpen    = errors.New("bridge: no open session")
	ErrRecordNotFound    = errors.New("bridge: record not found")
	ErrFieldNotFound     = errors.New("bridge: field not found")
	ErrFieldDecodeFailed = errors.New("bridge: field store decode failed")
	// ErrPayloadNotAllowedInDegradedMode is returned by SendFrame/
	// ReceiveFrame when the underlying PQRR machine is Degraded or Revoked
	// and the payload type is anything other than Veto or Recovery (spec.md §7).
	ErrPayloadNotAllowedInDegradedMode = errors.New("bridge: payload type not allowed while session is degraded")
)

// DeviceInfo is the sanitized device record returned by ListDevices.
// Never carries key material.
type DeviceInfo struct {
	DeviceID     epoch.DeviceId
	DeviceName   string
	Epoch        uint64
	State        epoch.DeviceStatus
	LastSeenMs   int64
	IsThisDevice bool
}

// deviceMeta is UI-only bookkeeping the core protocol has no concept of
// (display names, last-seen timestamps); it is kept here rather than on
// epoch.DeviceHeader because the wire-facing header is a closed,
// dependency-free value type (spec.md §9's "tagged variants" note).
type deviceMeta struct {
	Name       string
	LastSeenMs int64
}

// EngineHandle is the opaque handle a UI obtains for one vault. It owns
// the PQRR state machine, the vault key behind a lock, and the
// plaintext-field store decrypted from the VaultBlob under that key.
// Field retrieval is deliberately opaque per spec.md §9: the core only
// promises decrypt-by-(record_id, field_name), not a record schema.
type EngineHandle struct {
	mu      sync.RWMutex
	machine *pqrr.Machine
	vk      *secret.Bytes
	wire    *session.Session

	deviceMeta map[epoch.DeviceId]deviceMeta
	selfDevice epoch.DeviceId

	sessionOpen atomic.Bool
	locked      atomic.Bool
}

// BindWireSession attaches the live Wire session this handle should gate
// send/receive calls through. Until this is called, SendFrame/ReceiveFrame
// return ErrSessionNotOpen.
func (h *EngineHandle) BindWireSession(s *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wire = s
}

// Meltdown forwards the underlying PQRR machine's meltdown alert channel,
// per spec.md §12. A caller embedding an EngineHandle should drain this
// and terminate the process on receipt (spec.md §7 step (e)).
func (h *EngineHandle) Meltdown() <-chan pqrr.MeltdownAlert {
	return h.machine.Meltdown()
}

// SendFrame encrypts and frames plaintext for transmission, first
// rejecting payload types spec.md §7 disallows while the underlying PQRR
// machine is Degraded or Revoked (everything except Veto and Recovery);
// an escalated invariant violation passes through Degraded and ends in
// Revoked. SendFrame and ReceiveFrame are the only places in the bridge
// that enforce the degraded-mode restriction; callers must not reach
// session.Session.SendMessage directly once an EngineHandle exists for
// the connection.
func (h *EngineHandle) SendFrame(payloadType frame.PayloadType, plaintext []byte, epoch uint32) ([frame.FrameSize]byte, error) {
	h.mu.RLock()
	wire := h.wire
	h.mu.RUnlock()
	var out [frame.FrameSize]byte
	if wire == nil {
		return out, ErrSessionNotOpen
	}

	state := h.machine.CurrentState()
	degraded := state == pqrr.StateDegraded || state == pqrr.StateRevoked
	wire.SetDegraded(degraded)
	if degraded && !payloadType.AllowedInDegradedMode() {
		return out, ErrPayloadNotAllowedInDegradedMode
	}

	return wire.SendMessage(payloadType, plaintext, epoch)
}

// ReceiveFrame decodes and decrypts buf, rejecting payload types spec.md
// §7 disallows while the underlying PQRR machine is Degraded or Revoked.
// Mirrors
// SendFrame's gating on the receive path.
func (h *EngineHandle) ReceiveFrame(buf []byte) (frame.PayloadType, []byte, error) {
	h.mu.RLock()
	wire := h.wire
	h.mu.RUnlock()
	if wire == nil {
		return 0, nil, ErrSessionNotOpen
	}

	state := h.machine.CurrentState()
	degraded := state == pqrr.StateDegraded || state == pqrr.StateRevoked
	wire.SetDegraded(degraded)

	payloadType, plaintext, err := wire.ReceiveMessage(buf)
	if err != nil {
		return payloadType, plaintext, err
	}
	if degraded && !payloadType.AllowedInDegradedMode() {
		return payloadType, nil, ErrPayloadNotAllowedInDegradedMode
	}
	return payloadType, plaintext, nil
}

// Open constructs an EngineHandle bound to an already-initialized PQRR
// machine and its current vault key. The vault path, shadow-write and
// metadata plumbing live inside machine; the bridge never touches
// storage directly.
func Open(machine *pqrr.Machine, vk *secret.Bytes, selfDevice epoch.DeviceId) *EngineHandle {
	h := &EngineHandle{
		machine:    machine,
		vk:         vk,
		deviceMeta: make(map[epoch.DeviceId]deviceMeta),
		selfDevice: selfDevice,
	}
	h.locked.Store(true)
	return h
}

// RegisterDeviceName records a display name and last-seen timestamp for
// deviceID; ListDevices lists exactly the devices recorded here. It has
// no effect on PQRR state.
func (h *EngineHandle) RegisterDeviceName(deviceID epoch.DeviceId, name string, nowMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deviceMeta[deviceID] = deviceMeta{Name: name, LastSeenMs: nowMs}
}

// ListDevices returns sanitized info for every device recorded through
// RegisterDeviceName; a device known only to the PQRR header registry is
// not listed. Epoch and State are not filled in and stay at their zero
// values. When revealShadowAnchor is false, the all-zero shadow anchor device (if
// present) is omitted, keeping the cold-recovery anchor indistinguishable
// from an absent device at this boundary.
func (h *EngineHandle) ListDevices(revealShadowAnchor bool) []DeviceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]DeviceInfo, 0, len(h.deviceMeta))
	for id, meta := range h.deviceMeta {
		if id.IsShadowAnchor() && !revealShadowAnchor {
			continue
		}
		out = append(out, DeviceInfo{
			DeviceID:     id,
			DeviceName:   meta.Name,
			LastSeenMs:   meta.LastSeenMs,
			IsThisDevice: id == h.selfDevice,
		})
	}
	return out
}

// SessionHandle is the opaque handle OpenSession returns. Holding one
// authorizes DecryptField calls until LockSession is called. ID
// identifies the handle for logging/UI purposes only; it carries no key
// material and is never derived from one.
type SessionHandle struct {
	ID     uuid.UUID
	engine *EngineHandle
}

// OpenSession unlocks the engine for field decryption, returning an
// opaque SessionHandle. No key bytes are returned to the caller.
func (h *EngineHandle) OpenSession() (*SessionHandle, error) {
	h.locked.Store(false)
	h.sessionOpen.Store(true)
	return &SessionHandle{ID: uuid.New(), engine: h}, nil
}

// LockSession re-locks the engine; subsequent DecryptField calls fail
// until OpenSession is called again.
func (h *EngineHandle) LockSession() {
	h.locked.Store(true)
	h.sessionOpen.Store(false)
}

// fieldStore is the opaque plaintext-record format sealed inside a
// VaultBlob's ciphertext under VK. Its shape is a bridge-layer detail,
// not a protocol one (spec.md §9 treats plaintext-field retrieval as
// opaque).
type fieldStore map[string]map[string]string

// DecryptField decrypts the VaultBlob sealed under VK and returns a
// single field's plaintext. It requires an open, unlocked session.
func (s *SessionHandle) DecryptField(blob epoch.VaultBlob, recordID, fieldName string) (string, error) {
	if s.engine.locked.Load() || !s.engine.sessionOpen.Load() {
		return "", ErrSessionLocked
	}

	s.engine.mu.RLock()
	vk := s.engine.vk
	s.engine.mu.RUnlock()
	if vk == nil || vk.Released() {
		return "", ErrSessionNotOpen
	}

	cipher, err := aead.NewCipher(vk.Bytes())
	if err != nil {
		return "", err
	}
	sealed := aead.JoinTag(blob.Ciphertext, blob.AuthTag)
	plaintext, err := cipher.Open(blob.Nonce, sealed, nil)
	if err != nil {
		return "", err
	}

	var store fieldStore
	if err := json.Unmarshal(plaintext, &store); err != nil {
		return "", ErrFieldDecodeFailed
	}
	record, ok := store[recordID]
	if !ok {
		return "", ErrRecordNotFound
	}
	value, ok := record[fieldName]
	if !ok {
		return "", ErrFieldNotFound
	}
	return value, nil
}

// SealFieldStore encrypts a plaintext record map under VK into a fresh
// VaultBlob at the given epoch, for use by tests and initial vault
// provisioning. It is the inverse of DecryptField's decode path.
func SealFieldStore(vk *secret.Bytes, ep epoch.CryptoEpoch, records map[string]map[string]string) (epoch.VaultBlob, error) {
	plaintext, err := json.Marshal(fieldStore(records))
	if err != nil {
		return epoch.VaultBlob{}, err
	}
	cipher, err := aead.NewCipher(vk.Bytes())
	if err != nil {
		return epoch.VaultBlob{}, err
	}
	nonce, err := aead.GenerateNonce()
	if err != nil {
		return epoch.VaultBlob{}, err
	}
	sealed := cipher.Seal(nonce, plaintext, nil)
	ciphertext, tag, ok := aead.SplitTag(sealed)
	if !ok {
		return epoch.VaultBlob{}, aead.ErrOpenFailed
	}
	return epoch.VaultBlob{
		BlobVersion: epoch.CurrentBlobVersion,
		Epoch:       ep,
		Ciphertext:  ciphertext,
		AuthTag:     tag,
		Nonce:       nonce,
	}, nil
}

// InitiateRecovery forwards to the underlying state machine.
func (h *EngineHandle) InitiateRecovery(role epoch.Role, nowMs int64) (string, error) {
	return h.machine.InitiateRecovery(role, nowMs)
}

// RevokeDevice forwards to the underlying state machine and drops the
// device's display metadata once the protocol accepts the revocation.
func (h *EngineHandle) RevokeDevice(role epoch.Role, deviceID epoch.DeviceId, nowMs int64) error {
	if err := h.machine.RevokeDevice(role, deviceID, nowMs); err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.deviceMeta, deviceID)
	h.mu.Unlock()
	return nil
}

// State returns the underlying PQRR state, exposed read-only for UI
// status display.
func (h *EngineHandle) State() pqrr.State {
	return h.machine.CurrentState()
}
