// aeternum-demo walks a single vault through genesis, device
// registration, an epoch upgrade, and an authenticated Wire session,
// printing each stage's result. It exercises the engine end to end the
// way a real client embedding it would, without any network transport:
// two in-process peers exchange handshake and session frames directly.
//
// Usage:
//
//	aeternum-demo [options]
//
// Options:
//
//	-mnemonic   BIP-39 mnemonic seeding the vault (default: a fixed demo phrase)
//	-passphrase local device-unlock passphrase, stretched via Argon2id
//	-vault      path to the vault file this run writes (default: a temp file)
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aeternum/vault/internal/config"
	"github.com/aeternum/vault/pkg/bridge"
	"github.com/aeternum/vault/pkg/epoch"
	"github.com/aeternum/vault/pkg/keyhierarchy"
	"github.com/aeternum/vault/pkg/pqcrypto"
	"github.com/aeternum/vault/pkg/pqrr"
	"github.com/aeternum/vault/pkg/wire/frame"
	"github.com/aeternum/vault/pkg/wire/handshake"
	"github.com/aeternum/vault/pkg/wire/session"
	"github.com/aeternum/vault/pkg/wire/version"
)

// memMetadata is an in-process stand-in for the external metadata store
// spec.md §6 names; a real deployment backs this with a committed
// transaction against its own datastore.
type memMetadata struct {
	epoch uint32
}

func (m *memMetadata) GetEpoch() (uint32, error) { return m.epoch, nil }

func (m *memMetadata) UpdateEpoch(newVersion uint32) error {
	m.epoch = newVersion
	return nil
}

func main() {
	mnemonic := flag.String("mnemonic", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art", "BIP-39 mnemonic seeding the vault")
	passphrase := flag.String("passphrase", "demo-local-unlock-passphrase", "local device-unlock passphrase, stretched via Argon2id")
	vaultPath := flag.String("vault", filepath.Join(os.TempDir(), "aeternum-demo-vault.bin"), "path for the demo vault file")
	flag.Parse()

	if err := run(*mnemonic, *passphrase, *vaultPath); err != nil {
		log.Fatalf("aeternum-demo: %v", err)
	}
}

func run(mnemonic, passphrase, vaultPath string) error {
	masterSeed, err := keyhierarchy.DeriveMasterSeed(mnemonic)
	if err != nil {
		return fmt.Errorf("derive master seed: %w", err)
	}
	defer masterSeed.Release()
	log.Printf("master seed derived (%d bytes)", masterSeed.Len())

	unlockSalt := []byte("aeternum-demo-local-unlock-salt")
	localUnlockKey, err := keyhierarchy.DeriveLocalUnlockKey(passphrase, unlockSalt, config.Argon2Params{})
	if err != nil {
		return fmt.Errorf("derive local unlock key: %w", err)
	}
	defer localUnlockKey.Release()
	log.Printf("local unlock key derived via argon2id (%d bytes)", localUnlockKey.Len())

	identityKey, err := keyhierarchy.DeriveIdentityKey(masterSeed)
	if err != nil {
		return fmt.Errorf("derive identity key: %w", err)
	}
	defer identityKey.Release()
	log.Printf("identity key derived")

	vk, err := keyhierarchy.GenerateVaultKey()
	if err != nil {
		return fmt.Errorf("generate vault key: %w", err)
	}
	defer vk.Release()

	phoneID := epoch.DeviceId{0x01}
	laptopID := epoch.DeviceId{0x02}

	meta := &memMetadata{epoch: 1}
	shadowCfg := config.ShadowWriteConfig{}.WithDefaults()
	recCfg, err := config.RecoveryConfig{}.WithDefaults()
	if err != nil {
		return fmt.Errorf("recovery config: %w", err)
	}

	machine, err := pqrr.New(pqrr.Config{
		SelfDevice: phoneID,
		InitEpoch:  epoch.NewGenesisEpoch(1),
		CurrentVK:  vk,
		VaultPath:  vaultPath,
		Meta:       meta,
		ShadowCfg:  shadowCfg,
		RecCfg:     recCfg,
	})
	if err != nil {
		if errors.Is(err, pqrr.ErrStartupMeltdown) {
			alert := <-machine.Meltdown()
			return fmt.Errorf("startup recovery detected rollback, meltdown: invariant=%s reason=%s", alert.Invariant, alert.Reason)
		}
		return fmt.Errorf("initialize vault: %w", err)
	}
	log.Printf("vault initialized at epoch %d, state=%s", meta.epoch, machine.CurrentState())

	go func() {
		alert := <-machine.Meltdown()
		log.Printf("MELTDOWN: invariant=%s reason=%s", alert.Invariant, alert.Reason)
		os.Exit(1)
	}()

	laptopKeys, err := pqcrypto.GenerateKyberKeyPair()
	if err != nil {
		return fmt.Errorf("generate laptop kyber keypair: %w", err)
	}
	laptopMAC := []byte("demo-laptop-mac-key-do-not-reuse")
	if err := machine.RegisterDevice(epoch.RoleAuthorized, laptopID, laptopKeys.PublicKey, laptopMAC, 2); err != nil {
		return fmt.Errorf("register laptop: %w", err)
	}
	log.Printf("laptop registered; epoch advanced to %d, state=%s", meta.epoch, machine.CurrentState())

	engine := bridge.Open(machine, vk, phoneID)
	engine.RegisterDeviceName(phoneID, "Demo Phone", 2)
	engine.RegisterDeviceName(laptopID, "Demo Laptop", 2)
	for _, d := range engine.ListDevices(false) {
		log.Printf("device: id=%x name=%q this_device=%v", d.DeviceID, d.DeviceName, d.IsThisDevice)
	}

	if err := machine.RevokeDevice(epoch.RoleAuthorized, laptopID, 3); err != nil {
		return fmt.Errorf("revoke laptop: %w", err)
	}
	log.Printf("laptop revoked; epoch advanced to %d, state=%s", meta.epoch, machine.CurrentState())

	clientHello := version.VersionNegotiationMessage{
		Supported: []version.Version{{Major: 1, Minor: 0}, {Major: 1, Minor: 1}},
		Preferred: version.Version{Major: 1, Minor: 1},
		Capabilities: version.CapabilityHybridHandshake | version.CapabilityChaffSync |
			version.CapabilityVetoSignaling | version.CapabilityShadowWrapping,
	}
	serverSupported := []version.Version{{Major: 1, Minor: 0}, {Major: 1, Minor: 1}}
	negotiated, err := version.SelectBestMatch(clientHello, serverSupported)
	if err != nil {
		return fmt.Errorf("version negotiation: %w", err)
	}
	if !version.CanInitiatePqrr(clientHello.Preferred, negotiated) {
		return fmt.Errorf("version negotiation: peer cannot initiate pqrr at negotiated version")
	}
	log.Printf("version negotiated: %d.%d", negotiated.Major, negotiated.Minor)

	initState, hello, err := handshake.BeginInitiator()
	if err != nil {
		return fmt.Errorf("begin handshake: %w", err)
	}
	responderKey, reply, err := handshake.RespondToHello(hello)
	if err != nil {
		return fmt.Errorf("respond to handshake: %w", err)
	}
	initiatorKey, err := handshake.FinishInitiator(initState, reply)
	if err != nil {
		return fmt.Errorf("finish handshake: %w", err)
	}
	if initiatorKey != responderKey {
		return fmt.Errorf("handshake symmetry failed: session keys differ")
	}
	log.Printf("hybrid handshake complete, session key established")

	sender, err := session.New(initiatorKey, uint32(meta.epoch))
	if err != nil {
		return fmt.Errorf("new sender session: %w", err)
	}
	receiver, err := session.New(responderKey, uint32(meta.epoch))
	if err != nil {
		return fmt.Errorf("new receiver session: %w", err)
	}
	engine.BindWireSession(sender)
	receiverEngine := bridge.Open(machine, vk, laptopID)
	receiverEngine.BindWireSession(receiver)

	const demoMessage = "epoch upgrade complete, vault secure"
	frameBytes, err := engine.SendFrame(frame.PayloadSync, []byte(demoMessage), uint32(meta.epoch))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	_, plaintext, err := receiverEngine.ReceiveFrame(frameBytes[:])
	if err != nil {
		return fmt.Errorf("receive message: %w", err)
	}
	log.Printf("wire round trip ok: %q", string(plaintext))

	return nil
}
