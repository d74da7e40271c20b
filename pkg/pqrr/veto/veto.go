// Package veto implements the recovery window: a request's 48-hour veto
// period, the set of devices that have vetoed it, and commit-eligibility
// per spec.md §4.7. It is deliberately small and state-only; signature
// verification and clock access are supplied by the caller (pkg/pqrr)
// so this package stays synchronous and side-effect-free, per the
// teacher's preference for narrow, dependency-light state holders (see
// pkg/session/table.go's session table bookkeeping).
package veto

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/aeternum/vault/pkg/epoch"
	"github.com/aeternum/vault/pkg/storage/invariant"
)

// Errors returned by RecoveryWindow operations.
var (
	ErrInvalidSignature  = errors.New("veto: signature verification failed")
	ErrAlreadyVetoed     = errors.New("veto: device has already vetoed this request")
	ErrWindowNotElapsed  = errors.New("veto: recovery window has not yet elapsed")
	ErrVetoRecorded      = errors.New("veto: at least one valid veto was recorded for this request")
)

// DefaultWindow is the 48-hour veto window named throughout spec.md §4.4–§4.7.
const DefaultWindow = 48 * time.Hour

// RecoveryWindow holds the state of one in-flight recovery request.
type RecoveryWindow struct {
	RequestID   string
	StartMs     int64
	VetoCount   int
	SeenDevices map[epoch.DeviceId]bool
}

// NewRecoveryWindow opens a fresh window for requestID starting at startMs.
func NewRecoveryWindow(requestID string, startMs int64) *RecoveryWindow {
	return &RecoveryWindow{
		RequestID:   requestID,
		StartMs:     startMs,
		SeenDevices: make(map[epoch.DeviceId]bool),
	}
}

// Verifier checks a veto signature against the device's registered
// verification material. Implementations live alongside the device
// registry that owns the keys.
type Verifier interface {
	VerifyVetoSignature(device epoch.DeviceId, requestID string, signature []byte) bool
}

// AcceptVeto increments the veto count iff device has not already
// vetoed this request and its signature verifies. It does not itself
// consult the clock; callers check window expiry separately via
// CanCommit.
func (w *RecoveryWindow) AcceptVeto(device epoch.DeviceId, signature []byte, v Verifier) error {
	if w.SeenDevices[device] {
		return ErrAlreadyVetoed
	}
	if !v.VerifyVetoSignature(device, w.RequestID, signature) {
		return ErrInvalidSignature
	}
	w.SeenDevices[device] = true
	w.VetoCount++
	return nil
}

// CanCommit reports whether this recovery request may be committed at
// nowMs. Per spec.md §4.7 this requires both: now >= start_ms + window -
// clockSkewTolerance, and veto_count == 0. The within-window invariant
// (§4.3 check_veto_supremacy) is also consulted so a veto arriving
// before the window closes fails the same way it would at any other
// evaluation point. window is caller-supplied (config.RecoveryConfig.
// VetoWindow) rather than hardcoded, so deployments may tune it; pass
// DefaultWindow for the spec's 48h default.
func (w *RecoveryWindow) CanCommit(nowMs int64, window, clockSkewTolerance time.Duration) error {
	if err := invariant.CheckVetoSupremacy(w.VetoCount, w.StartMs, nowMs, window); err != nil {
		return err
	}
	if w.VetoCount > 0 {
		return ErrVetoRecorded
	}
	deadline := w.StartMs + int64((window-clockSkewTolerance)/time.Millisecond)
	if nowMs < deadline {
		return ErrWindowNotElapsed
	}
	return nil
}

// ConstantTimeEqual is a helper verifiers can use to compare a computed
// MAC against the supplied signature without leaking timing.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
