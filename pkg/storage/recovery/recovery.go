// Package recovery classifies vault state at startup by comparing the
// metadata store's epoch counter against the on-disk blob's epoch, and
// performs the one self-healing action the spec allows: advancing
// metadata to match a blob whose atomic rename already succeeded.
package recovery

import (
	"errors"
	"fmt"

	"github.com/pion/logging"

	"github.com/aeternum/vault/internal/telemetry"
	"github.com/aeternum/vault/pkg/storage/aup"
	"github.com/aeternum/vault/pkg/storage/shadowwrite"
)

// State is the three-way classification of metadata vs. blob epoch.
type State int

const (
	// Consistent means metadata and blob agree; normal startup proceeds.
	Consistent State = iota
	// BlobAhead means the blob's atomic rename succeeded but the
	// metadata transaction that should follow it did not; this is
	// always self-healing.
	BlobAhead
	// MetadataAhead means the metadata counter is ahead of the blob on
	// disk, which is never a legitimate post-crash state: it indicates
	// tampering or a rollback attack and triggers meltdown.
	MetadataAhead
)

func (s State) String() string {
	switch s {
	case Consistent:
		return "Consistent"
	case BlobAhead:
		return "BlobAhead"
	case MetadataAhead:
		return "MetadataAhead"
	default:
		return "Unknown"
	}
}

// ErrMetadataAheadOfBlob is returned by Heal when MetadataAhead
// is detected; callers must treat this as fatal and invoke the meltdown
// sequence rather than retry.
var ErrMetadataAheadOfBlob = errors.New("recovery: metadata epoch ahead of blob epoch, possible rollback attack")

// Classify compares the metadata store's epoch against the on-disk
// blob's epoch and returns the resulting State.
func Classify(metadataEpoch, blobEpoch uint64) State {
	switch {
	case metadataEpoch == blobEpoch:
		return Consistent
	case blobEpoch > metadataEpoch:
		return BlobAhead
	default:
		return MetadataAhead
	}
}

// Heal runs the startup recovery sequence: first removes any residual
// shadow-write temp file, then classifies and, for BlobAhead, updates
// the metadata store's epoch counter to match the blob. MetadataAhead is
// never healed; it is returned as ErrMetadataAheadOfBlob for the caller
// to route into meltdown. A nil logger is replaced with a disabled one
// via internal/telemetry, matching every other component in this tree.
func Heal(residualTempPath string, meta aup.MetadataSource, blobEpoch uint64, logger logging.LeveledLogger) (State, error) {
	if logger == nil {
		logger = telemetry.Scope(nil, "aeternum/storage/recovery")
	}

	if residualTempPath != "" {
		if err := shadowwrite.CleanupResidual(residualTempPath); err != nil {
			return Consistent, err
		}
	}

	metadataEpoch, err := meta.GetEpoch()
	if err != nil {
		return Consistent, fmt.Errorf("recovery: read metadata epoch: %w", err)
	}

	state := Classify(uint64(metadataEpoch), blobEpoch)
	switch state {
	case Consistent:
		return state, nil
	case BlobAhead:
		logger.Warnf("recovery: blob ahead of metadata (metadata=%d blob=%d), self-healing metadata epoch", metadataEpoch, blobEpoch)
		if err := meta.UpdateEpoch(uint32(blobEpoch)); err != nil {
			return state, fmt.Errorf("recovery: heal blob-ahead: %w", err)
		}
		return state, nil
	default: // MetadataAhead
		logger.Errorf("recovery: metadata ahead of blob (metadata=%d blob=%d), possible rollback attack, escalating to meltdown", metadataEpoch, blobEpoch)
		return state, ErrMetadataAheadOfBlob
	}
}
