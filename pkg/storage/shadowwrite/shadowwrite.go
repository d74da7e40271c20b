// Package shadowwrite implements atomic file replacement for the vault's
// on-disk blob: write a sibling temp file, fsync it, then rename it over
// the target. On POSIX same-filesystem semantics the rename is atomic, so
// a crash before the rename leaves the previous vault file untouched and
// a crash after it leaves the new one fully intact. It follows the
// temp-file-plus-fsync-plus-rename discipline used by the example
// corpus's journal rotation (a WAL-backed key-value store that compacts
// by writing to a ".tmp" sibling, syncing it, then os.Rename-ing it over
// the live file, cleaning up the temp file on any failure along the way).
package shadowwrite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aeternum/vault/internal/config"
)

// Errors returned by this package, per spec.md §4.2.
var (
	ErrShadowWriteFailed = errors.New("shadowwrite: create or write failed")
	ErrAtomicRenameFailed = errors.New("shadowwrite: atomic rename failed")
	ErrFsyncFailed        = errors.New("shadowwrite: fsync failed")
)

// Handle represents one in-flight shadow write. It owns a temp file
// sibling to the eventual target and must be either committed or
// dropped; a dropped, uncommitted handle deletes its temp file.
type Handle struct {
	targetPath string
	tempPath   string
	file       *os.File
	committed  bool
	closed     bool
}

// Begin creates a sibling temp file for targetPath with restrictive
// permissions, per cfg's TempSuffix and FilePerm.
func Begin(targetPath string, cfg config.ShadowWriteConfig) (*Handle, error) {
	dir := filepath.Dir(targetPath)
	tempPath := targetPath + cfg.TempSuffix

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(cfg.FilePerm))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShadowWriteFailed, err)
	}
	if _, err := os.Stat(dir); err != nil {
		f.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("%w: target directory missing: %v", ErrAtomicRenameFailed, err)
	}

	return &Handle{targetPath: targetPath, tempPath: tempPath, file: f}, nil
}

// WriteAndSync writes all of data to the temp file and forces a physical
// sync before returning.
func (h *Handle) WriteAndSync(data []byte) error {
	if h.closed {
		return ErrShadowWriteFailed
	}
	if _, err := h.file.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrShadowWriteFailed, err)
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrFsyncFailed, err)
	}
	return nil
}

// Commit renames the temp file over the target path. On the same
// filesystem this rename is a single atomic operation, per POSIX
// semantics.
func (h *Handle) Commit() error {
	if h.closed {
		return ErrShadowWriteFailed
	}
	if err := h.file.Close(); err != nil {
		h.closed = true
		os.Remove(h.tempPath)
		return fmt.Errorf("%w: %v", ErrShadowWriteFailed, err)
	}
	h.closed = true
	if err := os.Rename(h.tempPath, h.targetPath); err != nil {
		os.Remove(h.tempPath)
		return fmt.Errorf("%w: %v", ErrAtomicRenameFailed, err)
	}
	h.committed = true
	return nil
}

// Drop releases the handle. If it was never committed, its temp file is
// deleted; calling Drop after Commit is a no-op.
func (h *Handle) Drop() {
	if h.committed {
		return
	}
	if !h.closed {
		h.file.Close()
		h.closed = true
	}
	os.Remove(h.tempPath)
}

// CleanupResidual deletes a leftover temp file at tempPath, e.g. one
// discovered from a previous crashed process during startup recovery.
// It is not an error if no such file exists.
func CleanupResidual(tempPath string) error {
	err := os.Remove(tempPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrShadowWriteFailed, err)
	}
	return nil
}
