package bridge

import (
	"testing"

	"github.com/aeternum/vault/internal/config"
	"github.com/aeternum/vault/internal/secret"
	"github.com/aeternum/vault/pkg/epoch"
	"github.com/aeternum/vault/pkg/pqcrypto"
	"github.com/aeternum/vault/pkg/pqrr"
	"github.com/aeternum/vault/pkg/wire/frame"
	"github.com/aeternum/vault/pkg/wire/session"
)

func mustRecoveryDefaults(t *testing.T) config.RecoveryConfig {
	t.Helper()
	cfg, err := config.RecoveryConfig{}.WithDefaults()
	if err != nil {
		t.Fatalf("recovery config defaults: %v", err)
	}
	return cfg
}

func testVK(t *testing.T) *secret.Bytes {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return secret.From(key)
}

func newTestHandle(t *testing.T) (*EngineHandle, epoch.DeviceId) {
	t.Helper()
	self := epoch.DeviceId{1}
	m, err := pqrr.New(pqrr.Config{
		SelfDevice: self,
		InitEpoch:  epoch.NewGenesisEpoch(1000),
		CurrentVK:  testVK(t),
		VaultPath:  t.TempDir() + "/vault.bin",
		Meta:       nil,
		ShadowCfg:  config.ShadowWriteConfig{}.WithDefaults(),
		RecCfg:     mustRecoveryDefaults(t),
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	h := Open(m, testVK(t), self)
	h.RegisterDeviceName(self, "phone", 1000)
	return h, self
}

func TestListDevicesOmitsShadowAnchorByDefault(t *testing.T) {
	h, _ := newTestHandle(t)
	h.RegisterDeviceName(epoch.ShadowAnchor, "cold-anchor", 1000)

	devices := h.ListDevices(false)
	for _, d := range devices {
		if d.DeviceID.IsShadowAnchor() {
			t.Fatal("shadow anchor must be omitted when revealShadowAnchor is false")
		}
	}

	devices = h.ListDevices(true)
	found := false
	for _, d := range devices {
		if d.DeviceID.IsShadowAnchor() {
			found = true
		}
	}
	if !found {
		t.Fatal("shadow anchor must be present when revealShadowAnchor is true")
	}
}

func TestListDevicesMarksSelf(t *testing.T) {
	h, self := newTestHandle(t)
	devices := h.ListDevices(false)
	if len(devices) != 1 || !devices[0].IsThisDevice || devices[0].DeviceID != self {
		t.Fatalf("expected single self device, got %+v", devices)
	}
}

func TestDecryptFieldRequiresOpenSession(t *testing.T) {
	h, _ := newTestHandle(t)
	vk := testVK(t)
	blob, err := SealFieldStore(vk, epoch.NewGenesisEpoch(1000), map[string]map[string]string{
		"rec1": {"username": "alice"},
	})
	if err != nil {
		t.Fatalf("seal field store: %v", err)
	}

	sess, err := h.OpenSession()
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	h.LockSession()
	if _, err := sess.DecryptField(blob, "rec1", "username"); err != ErrSessionLocked {
		t.Fatalf("expected ErrSessionLocked, got %v", err)
	}
}

func TestDecryptFieldRoundTrip(t *testing.T) {
	vk := testVK(t)
	self := epoch.DeviceId{1}
	m, err := pqrr.New(pqrr.Config{
		SelfDevice: self,
		InitEpoch:  epoch.NewGenesisEpoch(1000),
		CurrentVK:  vk,
		VaultPath:  t.TempDir() + "/vault.bin",
		ShadowCfg:  config.ShadowWriteConfig{}.WithDefaults(),
		RecCfg:     mustRecoveryDefaults(t),
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	h := Open(m, vk, self)

	blob, err := SealFieldStore(vk, epoch.NewGenesisEpoch(1000), map[string]map[string]string{
		"rec1": {"username": "alice", "password": "hunter2"},
	})
	if err != nil {
		t.Fatalf("seal field store: %v", err)
	}

	sess, err := h.OpenSession()
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	got, err := sess.DecryptField(blob, "rec1", "password")
	if err != nil {
		t.Fatalf("decrypt field: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("got %q, want hunter2", got)
	}

	if _, err := sess.DecryptField(blob, "rec1", "missing"); err != ErrFieldNotFound {
		t.Fatalf("expected ErrFieldNotFound, got %v", err)
	}
	if _, err := sess.DecryptField(blob, "missing-record", "username"); err != ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

type memMetadata struct {
	epoch uint32
}

func (m *memMetadata) GetEpoch() (uint32, error)        { return m.epoch, nil }
func (m *memMetadata) UpdateEpoch(newVersion uint32) error { m.epoch = newVersion; return nil }

func TestRevokeDeviceDropsDisplayMetadata(t *testing.T) {
	self := epoch.DeviceId{1}
	other := epoch.DeviceId{2}
	vk := testVK(t)
	meta := &memMetadata{epoch: 1}

	m, err := pqrr.New(pqrr.Config{
		SelfDevice: self,
		InitEpoch:  epoch.NewGenesisEpoch(1000),
		CurrentVK:  vk,
		VaultPath:  t.TempDir() + "/vault.bin",
		Meta:       meta,
		ShadowCfg:  config.ShadowWriteConfig{}.WithDefaults(),
		RecCfg:     mustRecoveryDefaults(t),
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	h := Open(m, vk, self)
	h.RegisterDeviceName(self, "phone", 1000)
	h.RegisterDeviceName(other, "laptop", 1000)

	pair, err := pqcrypto.GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("generate kyber keypair: %v", err)
	}
	if err := m.RegisterDevice(epoch.RoleAuthorized, other, pair.PublicKey, []byte("mac-key-for-laptop"), 1500); err != nil {
		t.Fatalf("register device: %v", err)
	}

	if err := h.RevokeDevice(epoch.RoleAuthorized, other, 2000); err != nil {
		t.Fatalf("revoke device: %v", err)
	}

	for _, d := range h.ListDevices(false) {
		if d.DeviceID == other {
			t.Fatal("revoked device's display metadata must be dropped")
		}
	}
}

func TestSendFrameBlocksNonVetoRecoveryWhenDegraded(t *testing.T) {
	h, _ := newTestHandle(t)
	var key [32]byte
	wire, err := session.New(key, 1000)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	h.BindWireSession(wire)

	h.machine.EscalateInvariantViolation("invariant_2", "test-triggered", 1234)

	if _, err := h.SendFrame(frame.PayloadSync, []byte("hello"), 1000); err != ErrPayloadNotAllowedInDegradedMode {
		t.Fatalf("expected ErrPayloadNotAllowedInDegradedMode, got %v", err)
	}
	if _, err := h.SendFrame(frame.PayloadVeto, []byte("veto"), 1000); err != nil {
		t.Fatalf("veto frame must still be sendable while degraded: %v", err)
	}
}

func TestSendFrameRequiresBoundSession(t *testing.T) {
	h, _ := newTestHandle(t)
	if _, err := h.SendFrame(frame.PayloadSync, []byte("hello"), 1000); err != ErrSessionNotOpen {
		t.Fatalf("expected ErrSessionNotOpen, got %v", err)
	}
}

func TestEngineHandleMeltdownForwardsMachineAlert(t *testing.T) {
	h, _ := newTestHandle(t)
	h.machine.EscalateInvariantViolation("invariant_1", "fork detected", 5000)

	select {
	case alert := <-h.Meltdown():
		if alert.Invariant != "invariant_1" {
			t.Fatalf("unexpected alert: %+v", alert)
		}
	default:
		t.Fatal("expected a MeltdownAlert forwarded through EngineHandle.Meltdown()")
	}
}
