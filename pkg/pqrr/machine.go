package pqrr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/aeternum/vault/internal/config"
	"github.com/aeternum/vault/internal/secret"
	"github.com/aeternum/vault/internal/telemetry"
	"github.com/aeternum/vault/pkg/epoch"
	"github.com/aeternum/vault/pkg/pqcrypto"
	"github.com/aeternum/vault/pkg/pqrr/veto"
	"github.com/aeternum/vault/pkg/storage/aup"
	"github.com/aeternum/vault/pkg/storage/invariant"
	"github.com/aeternum/vault/pkg/storage/recovery"
)

// Machine is the PQRR state machine for one vault: a header registry
// protected by a read/write lock (concurrent readers, serialized
// mutation, per spec.md §5), the current protocol State, and an
// optional in-flight RecoveryWindow. Every management operation runs
// through check_causal_barrier before any side effect.
type Machine struct {
	mu sync.RWMutex

	state      State
	headers    map[epoch.DeviceId]epoch.DeviceHeader
	curEpoch   epoch.CryptoEpoch
	selfDevice epoch.DeviceId

	currentVK *secret.Bytes

	recovery *veto.RecoveryWindow
	recCfg   config.RecoveryConfig

	vaultPath string
	meta      aup.MetadataSource
	shadowCfg config.ShadowWriteConfig

	macKeys map[epoch.DeviceId][]byte

	forkDetected bool
	meltdownCh   chan MeltdownAlert
	logger       logging.LeveledLogger
}

// Config bundles everything needed to construct a Machine.
type Config struct {
	SelfDevice epoch.DeviceId
	InitEpoch  epoch.CryptoEpoch
	CurrentVK  *secret.Bytes
	VaultPath  string
	Meta       aup.MetadataSource
	ShadowCfg  config.ShadowWriteConfig
	RecCfg     config.RecoveryConfig

	// Logger receives leveled recovery/meltdown events. A nil Logger is
	// replaced with a disabled one via internal/telemetry.
	Logger logging.LeveledLogger
}

// New constructs a Machine with an empty header registry, first running
// startup crash recovery (spec.md §2: "crash recovery runs once at
// startup before any other component observes storage"). A residual
// shadow-write temp file, if any, is cleaned up; metadata-vs-blob
// classification runs via pkg/storage/recovery.Heal against cfg.Meta. A
// BlobAhead result self-heals (Heal logs it at Warn level) and New
// returns no error. A MetadataAhead result is fatal:
// the returned Machine is already driven to StateRevoked via
// EscalateInvariantViolation, and New returns ErrStartupMeltdown. If
// cfg.Meta is nil, no external metadata store is configured and startup
// recovery is skipped (the machine still starts, matching uses such as
// field-only decryption that never reach AUP).
func New(cfg Config) (*Machine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Scope(nil, "aeternum/pqrr")
	}

	m := &Machine{
		state:      StateIdle,
		headers:    make(map[epoch.DeviceId]epoch.DeviceHeader),
		curEpoch:   cfg.InitEpoch,
		selfDevice: cfg.SelfDevice,
		currentVK:  cfg.CurrentVK,
		vaultPath:  cfg.VaultPath,
		meta:       cfg.Meta,
		shadowCfg:  cfg.ShadowCfg,
		recCfg:     cfg.RecCfg,
		macKeys:    make(map[epoch.DeviceId][]byte),
		meltdownCh: make(chan MeltdownAlert, 1),
		logger:     logger,
	}

	if cfg.Meta != nil {
		residualTempPath := ""
		if cfg.VaultPath != "" {
			residualTempPath = cfg.VaultPath + cfg.ShadowCfg.TempSuffix
		}
		if _, err := recovery.Heal(residualTempPath, cfg.Meta, cfg.InitEpoch.Version, logger); err != nil {
			if errors.Is(err, recovery.ErrMetadataAheadOfBlob) {
				m.escalateLocked("metadata_ahead_of_blob", fmt.Sprintf("startup recovery: %v", err), int64(cfg.InitEpoch.TimestampMs))
				return m, ErrStartupMeltdown
			}
			return nil, fmt.Errorf("pqrr: startup recovery failed: %w", err)
		}
	}

	return m, nil
}

// CurrentState returns the machine's current State.
func (m *Machine) CurrentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// activeHeadersLocked returns a snapshot slice of every Active header,
// regardless of ordering; callers must already hold m.mu.
func (m *Machine) activeHeadersLocked() []epoch.DeviceHeader {
	out := make([]epoch.DeviceHeader, 0, len(m.headers))
	for _, h := range m.headers {
		if h.Status == epoch.DeviceStatusActive {
			out = append(out, h)
		}
	}
	return out
}

// RegisterDevice adds a new device header at the current epoch and
// triggers a Rekeying transition to reissue every active header under a
// fresh DEK. Authorized role only.
func (m *Machine) RegisterDevice(role epoch.Role, deviceID epoch.DeviceId, pubKey []byte, macKey []byte, nowMs int64) error {
	if err := invariant.CheckCausalBarrier(role, epoch.OpRegisterDevice); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientPrivileges, err)
	}
	if len(pubKey) != epoch.KyberPublicKeySize {
		return fmt.Errorf("%w: public key size", ErrInvalidStateTransition)
	}

	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrInvalidStateTransition
	}
	newHeader := epoch.DeviceHeader{DeviceID: deviceID, Epoch: m.curEpoch, Status: epoch.DeviceStatusActive}
	copy(newHeader.PublicKey[:], pubKey)
	m.headers[deviceID] = newHeader
	m.macKeys[deviceID] = macKey
	m.state = StateRekeying
	headers := m.activeHeadersLocked()
	curEpoch := m.curEpoch
	vk := m.currentVK
	m.mu.Unlock()

	return m.runRekey(epoch.RoleAuthorized, curEpoch, vk, headers, nowMs)
}

// RevokeDevice marks deviceID Revoked and triggers a Rekeying transition
// so the revoked device loses access to the next epoch's DEK. A device
// may never revoke itself.
func (m *Machine) RevokeDevice(role epoch.Role, deviceID epoch.DeviceId, nowMs int64) error {
	if err := invariant.CheckCausalBarrier(role, epoch.OpRevokeDevice); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientPrivileges, err)
	}
	if deviceID == m.selfDevice {
		return ErrCannotRevokeSelf
	}

	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrInvalidStateTransition
	}
	h, ok := m.headers[deviceID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: unknown device", ErrInvalidStateTransition)
	}
	h.Status = epoch.DeviceStatusRevoked
	m.headers[deviceID] = h
	m.state = StateRekeying
	headers := m.activeHeadersLocked()
	curEpoch := m.curEpoch
	vk := m.currentVK
	m.mu.Unlock()

	return m.runRekey(epoch.RoleAuthorized, curEpoch, vk, headers, nowMs)
}

// runRekey drives the AUP prepare/commit sequence and returns the
// machine to Idle on success, or Idle with no externalized state on
// failure (per the Rekeying→Idle aup_failed transition).
func (m *Machine) runRekey(role epoch.Role, curEpoch epoch.CryptoEpoch, vk *secret.Bytes, headers []epoch.DeviceHeader, nowMs int64) error {
	target := curEpoch.Next(uint64(nowMs))

	prepared, err := aup.Prepare(aup.Input{
		CurrentEpoch:  curEpoch,
		CurrentVK:     vk,
		ActiveHeaders: headers,
		TargetEpoch:   target,
		InitiatorRole: role,
	})
	if err != nil {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		return err
	}
	defer prepared.Release()

	if err := aup.Commit(m.vaultPath, prepared, m.meta, m.shadowCfg); err != nil {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		return &StorageError{Op: "aup_commit", Err: err}
	}

	m.mu.Lock()
	if target.Version != m.curEpoch.Version+1 {
		m.mu.Unlock()
		return ErrEpochRegression
	}
	m.curEpoch = target
	for _, h := range prepared.NewHeaders {
		m.headers[h.DeviceID] = h
	}
	m.state = StateIdle
	m.mu.Unlock()
	return nil
}

// InitiateRecovery opens a fresh RecoveryWindow and returns its request
// id, of the form rec_<unix_ms>. Either role may call this.
func (m *Machine) InitiateRecovery(role epoch.Role, nowMs int64) (string, error) {
	if err := invariant.CheckCausalBarrier(role, epoch.OpInitiateRecovery); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInsufficientPrivileges, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return "", ErrInvalidStateTransition
	}
	requestID := fmt.Sprintf("rec_%d", nowMs)
	m.recovery = veto.NewRecoveryWindow(requestID, nowMs)
	m.state = StateRecovery
	return requestID, nil
}

// PostVeto verifies a signed veto against the device's registered MAC
// key and records it against the current recovery window.
func (m *Machine) PostVeto(role epoch.Role, requestID string, deviceID epoch.DeviceId, signature []byte) error {
	if err := invariant.CheckCausalBarrier(role, epoch.OpVeto); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientPrivileges, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recovery == nil || m.recovery.RequestID != requestID {
		return fmt.Errorf("%w: unknown recovery request", ErrInvalidStateTransition)
	}
	if err := m.recovery.AcceptVeto(deviceID, signature, m); err != nil {
		return err
	}
	// veto_received: Recovery -> Idle (aborted), per the transition table.
	m.state = StateIdle
	return nil
}

// VerifyVetoSignature implements veto.Verifier using a per-device
// BLAKE3-derived MAC key established at registration time (spec.md
// leaves the veto signature scheme unspecified beyond "signed blob
// verified against a registered device"; this package picks a
// symmetric MAC rather than a second asymmetric scheme, since the
// device already shares a Kyber-wrapped secret with the vault).
func (m *Machine) VerifyVetoSignature(device epoch.DeviceId, requestID string, signature []byte) bool {
	key, ok := m.macKeys[device]
	if !ok {
		return false
	}
	input := make([]byte, 0, len(key)+len(requestID))
	input = append(input, key...)
	input = append(input, []byte(requestID)...)
	expected, err := pqcrypto.Blake3DeriveKey(vetoMacContext, input, 32)
	if err != nil {
		return false
	}
	return veto.ConstantTimeEqual(expected, signature)
}

const vetoMacContext = "aeternum v5 veto-signature-v1"

// CommitRecovery attempts to commit the in-flight recovery request.
// Requires no veto recorded and the 48h-minus-skew window elapsed.
func (m *Machine) CommitRecovery(nowMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recovery == nil {
		return ErrInvalidStateTransition
	}
	if err := m.recovery.CanCommit(nowMs, m.recCfg.VetoWindow, m.recCfg.ClockSkewTolerance); err != nil {
		return &VetoedError{VetoCount: m.recovery.VetoCount}
	}
	m.recovery = nil
	m.state = StateIdle
	return nil
}

// CleanupRevokedHeaders purges every header a prior RevokeDevice call
// marked Revoked, along with its MAC key. It re-verifies
// Invariant #2 against the current epoch after the mutation.
func (m *Machine) CleanupRevokedHeaders() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range m.headers {
		if h.Status == epoch.DeviceStatusRevoked {
			delete(m.headers, id)
			delete(m.macKeys, id)
		}
	}
	all := make([]epoch.DeviceHeader, 0, len(m.headers))
	for _, h := range m.headers {
		all = append(all, h)
	}
	return invariant.CheckAllHeadersComplete(all, m.curEpoch)
}

// MeltdownAlert is the structured payload emitted on the terminal
// fatal-error path (spec.md §7): which invariant was violated, a
// human-readable reason, and when. Meltdown() delivers these to callers
// that need to react (log, alert a user, terminate the process).
type MeltdownAlert struct {
	Invariant   string
	Reason      string
	TimestampMs int64
}

// ForkDetected reports whether this machine has observed a fatal
// invariant violation (rollback attack, tampering, or any other
// condition that escalated via EscalateInvariantViolation). Once true it
// never resets; a forked vault instance must be re-initialized from the
// mnemonic, not resumed.
func (m *Machine) ForkDetected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forkDetected
}

// Meltdown returns the channel MeltdownAlert values are published to.
// The channel is buffered by one; EscalateInvariantViolation never
// blocks on a slow or absent reader. Callers that embed a Machine (e.g.
// the one shipped entrypoint) should drain this channel and terminate
// the process on receipt, per spec.md §7 step (e).
func (m *Machine) Meltdown() <-chan MeltdownAlert {
	return m.meltdownCh
}

// EscalateInvariantViolation drives the machine through the full
// fatal-error sequence spec.md §7 mandates for MetadataAhead, a live
// Invariant #1/#2 violation, or detected tampering: (a) state flips to
// Degraded then Revoked, so every state-gated operation (RegisterDevice,
// RevokeDevice, InitiateRecovery) fails from then on, and the vault key
// is released, so a bridge sharing that key can no longer decrypt
// fields (the Role×Operation table in pkg/epoch does not consult machine
// state); (b) every secret-bearing field still held by this Machine is
// zeroed, not just the vault key; (c) forkDetected is latched so a
// resumed process can tell it must not trust this instance's on-disk
// state; (d) a MeltdownAlert describing the violation is published for
// the caller to surface and log. Terminating the process (step (e)) is
// the caller's responsibility, since a library must never call os.Exit
// on its own; the one shipped entrypoint does this by draining Meltdown().
func (m *Machine) EscalateInvariantViolation(invariantID, reason string, nowMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalateLocked(invariantID, reason, nowMs)
}

// escalateLocked is EscalateInvariantViolation's body, callable from New
// before the Machine has been returned to any other goroutine (so no
// lock is taken there) as well as from EscalateInvariantViolation itself
// (which does hold m.mu).
func (m *Machine) escalateLocked(invariantID, reason string, nowMs int64) {
	m.state = StateDegraded
	if m.currentVK != nil {
		m.currentVK.Release()
	}
	for id, key := range m.macKeys {
		for i := range key {
			key[i] = 0
		}
		delete(m.macKeys, id)
	}
	m.forkDetected = true
	m.state = StateRevoked

	m.logger.Errorf("pqrr: meltdown: invariant=%s reason=%s", invariantID, reason)
	alert := MeltdownAlert{Invariant: invariantID, Reason: reason, TimestampMs: nowMs}
	select {
	case m.meltdownCh <- alert:
	default:
	}
}
