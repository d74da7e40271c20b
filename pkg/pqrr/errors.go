package pqrr

import "errors"

// PqrrError variants, surfaced to the bridge per spec.md §6/§4.6.
var (
	ErrEpochRegression        = errors.New("pqrr: epoch regression")
	ErrHeaderIncomplete       = errors.New("pqrr: header registry incomplete for epoch")
	ErrInsufficientPrivileges = errors.New("pqrr: insufficient privileges for operation")
	ErrPermissionDenied       = errors.New("pqrr: permission denied")
	ErrVetoed                 = errors.New("pqrr: recovery vetoed")
	ErrInvalidStateTransition = errors.New("pqrr: invalid state transition")

	// ErrCannotRevokeSelf is a protocol rejection distinct from
	// InsufficientPrivileges: the role is authorized, but this specific
	// target is disallowed.
	ErrCannotRevokeSelf = errors.New("pqrr: a device cannot revoke itself")

	// ErrStartupMeltdown is returned by New when startup recovery
	// classifies the vault as MetadataAhead of its on-disk blob. The
	// returned Machine, if any, is already in StateRevoked and must not
	// be used.
	ErrStartupMeltdown = errors.New("pqrr: startup recovery detected metadata ahead of blob, meltdown triggered")
)

// StorageError wraps a failure from the underlying storage stack
// (shadow-write, AUP commit, metadata update) so callers can distinguish
// protocol rejections from I/O failures.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "pqrr: storage error during " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// VetoedError carries the veto count observed at commit time, per
// spec.md §8 scenario 6 (Vetoed{veto_count=1}).
type VetoedError struct {
	VetoCount int
}

func (e *VetoedError) Error() string {
	return ErrVetoed.Error()
}

func (e *VetoedError) Unwrap() error { return ErrVetoed }
