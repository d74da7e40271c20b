// Package aup implements the Atomic Epoch Upgrade Protocol: the
// three-phase prepare/shadow-write/commit sequence that re-keys the
// vault to a new epoch without ever exposing an intermediate state on
// disk. It composes pkg/keyhierarchy, pkg/pqcrypto, pkg/aead,
// pkg/storage/invariant and pkg/storage/shadowwrite, mirroring how the
// teacher's securechannel manager sequences a multi-step cryptographic
// protocol as a small set of named phases each returning a structured
// error.
package aup

import (
	"errors"
	"fmt"

	"github.com/aeternum/vault/internal/config"
	"github.com/aeternum/vault/internal/secret"
	"github.com/aeternum/vault/pkg/aead"
	"github.com/aeternum/vault/pkg/epoch"
	"github.com/aeternum/vault/pkg/keyhierarchy"
	"github.com/aeternum/vault/pkg/pqcrypto"
	"github.com/aeternum/vault/pkg/storage/invariant"
	"github.com/aeternum/vault/pkg/storage/shadowwrite"
)

// Errors surfaced by Prepare/Commit beyond the raw invariant.Violation
// values they wrap.
var (
	ErrInsufficientPrivileges = errors.New("aup: initiator role is not Authorized")
	ErrMetadataUpdateFailed   = errors.New("aup: metadata epoch update failed")
)

// MetadataSource is the two-operation external metadata store named in
// spec.md §6: get_epoch/update_epoch, each backed by a committed
// transaction in the real deployment.
type MetadataSource interface {
	GetEpoch() (uint32, error)
	UpdateEpoch(newVersion uint32) error
}

// Input bundles everything Prepare needs: the current epoch, the
// currently-unlocked VK, every active device's header, and the target
// epoch identifier.
type Input struct {
	CurrentEpoch epoch.CryptoEpoch
	CurrentVK    *secret.Bytes
	ActiveHeaders []epoch.DeviceHeader
	TargetEpoch  epoch.CryptoEpoch
	InitiatorRole epoch.Role
}

// Prepared is the in-memory output of Phase 1: a new VaultBlob and the
// replacement header set, not yet written to disk.
type Prepared struct {
	NewBlob    epoch.VaultBlob
	NewHeaders []epoch.DeviceHeader
	dekNew     *secret.Bytes
}

// Release zeroes the fresh DEK held by a Prepared result that was never
// committed.
func (p *Prepared) Release() {
	if p.dekNew != nil {
		p.dekNew.Release()
	}
}

// Prepare runs Phase 1 entirely in memory: validates the initiator's
// role (Invariant #3), validates epoch monotonicity (Invariant #1),
// derives a fresh DEK and re-wraps VK under it. For every active device
// it runs a fresh Kyber-1024 encapsulation against the device's public
// key and stores the resulting ciphertext as the header's EncryptedDEK;
// the encapsulated shared secret is discarded and is not bound to the
// new DEK, so the DEK cannot be recovered from a header. No disk I/O
// occurs.
func Prepare(in Input) (*Prepared, error) {
	if err := invariant.CheckCausalBarrier(in.InitiatorRole, epoch.OpSigmaRotate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientPrivileges, err)
	}
	if err := invariant.CheckEpochMonotonicity(in.CurrentEpoch, in.TargetEpoch); err != nil {
		return nil, err
	}

	dekNew, err := keyhierarchy.GenerateDataEncryptionKey()
	if err != nil {
		return nil, err
	}

	dekCipher, err := aead.NewCipher(dekNew.Bytes())
	if err != nil {
		dekNew.Release()
		return nil, err
	}
	vkNonce, err := aead.GenerateNonce()
	if err != nil {
		dekNew.Release()
		return nil, err
	}
	sealedVK := dekCipher.Seal(vkNonce, in.CurrentVK.Bytes(), nil)
	ct, tag, _ := aead.SplitTag(sealedVK)

	newHeaders := make([]epoch.DeviceHeader, 0, len(in.ActiveHeaders))
	for _, h := range in.ActiveHeaders {
		if h.Status != epoch.DeviceStatusActive {
			continue
		}
		cipherText, _, err := pqcrypto.KyberEncapsulate(h.PublicKey[:])
		if err != nil {
			dekNew.Release()
			return nil, err
		}
		newHeader := h
		newHeader.Epoch = in.TargetEpoch
		copy(newHeader.EncryptedDEK[:], cipherText)
		newHeaders = append(newHeaders, newHeader)
	}

	if err := invariant.CheckAllHeadersComplete(newHeaders, in.TargetEpoch); err != nil {
		dekNew.Release()
		return nil, err
	}

	blob := epoch.VaultBlob{
		BlobVersion: epoch.CurrentBlobVersion,
		Epoch:       in.TargetEpoch,
		Ciphertext:  ct,
	}
	copy(blob.AuthTag[:], tag[:])
	copy(blob.Nonce[:], vkNonce[:])

	return &Prepared{NewBlob: blob, NewHeaders: newHeaders, dekNew: dekNew}, nil
}

// serializeVaultFile builds the on-disk representation of a VaultHeader
// followed by its VaultBlob's ciphertext, auth tag and nonce (spec.md §6).
func serializeVaultFile(blob epoch.VaultBlob) []byte {
	data := make([]byte, 0, len(blob.Ciphertext)+16+24)
	data = append(data, blob.Ciphertext...)
	data = append(data, blob.AuthTag[:]...)
	data = append(data, blob.Nonce[:]...)

	header := epoch.VaultHeader{
		BlobVersion:  blob.BlobVersion,
		EpochVersion: blob.Epoch.Version,
		DataLength:   uint64(len(data)),
	}
	encoded := header.Encode()

	out := make([]byte, 0, len(encoded)+len(data))
	out = append(out, encoded[:]...)
	out = append(out, data...)
	return out
}

// Commit runs Phases 2 and 3: serialize, shadow-write, sync, atomically
// rename over vaultPath, then update the metadata store's epoch counter
// in a committed transaction. A failure before the rename leaves the
// previous epoch fully intact; a failure after the rename but before the
// metadata update leaves a self-healing BlobAhead state for
// pkg/storage/recovery to find on next startup.
func Commit(vaultPath string, prepared *Prepared, meta MetadataSource, cfg config.ShadowWriteConfig) error {
	payload := serializeVaultFile(prepared.NewBlob)

	handle, err := shadowwrite.Begin(vaultPath, cfg)
	if err != nil {
		return err
	}
	defer handle.Drop()

	if err := handle.WriteAndSync(payload); err != nil {
		return err
	}
	if err := handle.Commit(); err != nil {
		return err
	}

	if err := meta.UpdateEpoch(uint32(prepared.NewBlob.Epoch.Version)); err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataUpdateFailed, err)
	}
	return nil
}
