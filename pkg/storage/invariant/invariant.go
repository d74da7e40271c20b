// Package invariant holds the four pure invariant-check entry points that
// gate epoch transitions, header completeness, role capability, and veto
// supremacy. None of these functions perform I/O or hold state; they are
// called by pkg/pqrr and pkg/storage/aup at the points spec.md names.
package invariant

import (
	"fmt"
	"time"

	"github.com/aeternum/vault/pkg/epoch"
)

// Number identifies which numbered invariant a Violation reports against.
type Number int

const (
	// InvariantEpochMonotonicity is Invariant #1: epoch versions increase
	// by exactly 1 on every accepted transition.
	InvariantEpochMonotonicity Number = 1
	// InvariantHeaderCompleteness is Invariant #2: exactly one header per
	// active device per epoch.
	InvariantHeaderCompleteness Number = 2
	// InvariantCausalBarrier is Invariant #3: RECOVERY role can never
	// perform management operations.
	InvariantCausalBarrier Number = 3
	// InvariantVetoSupremacy is Invariant #4: any valid veto within the
	// window blocks commit.
	InvariantVetoSupremacy Number = 4
)

// Violation is returned by every failing check. Context is a structured,
// key-bytes-free description of what failed.
type Violation struct {
	Invariant Number
	Context   string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("invariant: #%d violated: %s", v.Invariant, v.Context)
}

// CheckEpochMonotonicity requires new to be the strict successor of
// current: new.Version == current.Version + 1.
func CheckEpochMonotonicity(current, new epoch.CryptoEpoch) error {
	if new.Version != current.Version+1 {
		return &Violation{
			Invariant: InvariantEpochMonotonicity,
			Context:   fmt.Sprintf("current_version=%d new_version=%d", current.Version, new.Version),
		}
	}
	return nil
}

// CheckHeaderCompleteness requires exactly one header for deviceID that
// belongs to the given epoch within headers.
func CheckHeaderCompleteness(headers []epoch.DeviceHeader, deviceID epoch.DeviceId, ep epoch.CryptoEpoch) error {
	count := 0
	for _, h := range headers {
		if h.DeviceID == deviceID && h.Epoch.Version == ep.Version {
			count++
		}
	}
	if count != 1 {
		return &Violation{
			Invariant: InvariantHeaderCompleteness,
			Context:   fmt.Sprintf("device_id_present_count=%d epoch_version=%d", count, ep.Version),
		}
	}
	return nil
}

// CheckAllHeadersComplete validates Invariant #2 in batch: every Active
// device present in headers must have exactly one header belonging to
// ep. Used at startup and after every header-registry mutation.
func CheckAllHeadersComplete(headers []epoch.DeviceHeader, ep epoch.CryptoEpoch) error {
	activeDevices := map[epoch.DeviceId]bool{}
	countAtEpoch := map[epoch.DeviceId]int{}
	for _, h := range headers {
		if h.Status != epoch.DeviceStatusActive {
			continue
		}
		activeDevices[h.DeviceID] = true
		if h.Epoch.Version == ep.Version {
			countAtEpoch[h.DeviceID]++
		}
	}
	for id := range activeDevices {
		if got := countAtEpoch[id]; got != 1 {
			return &Violation{
				Invariant: InvariantHeaderCompleteness,
				Context:   fmt.Sprintf("device present_count=%d epoch_version=%d", got, ep.Version),
			}
		}
	}
	return nil
}

// CheckCausalBarrier consults the role-capability table (Invariant #3).
func CheckCausalBarrier(role epoch.Role, op epoch.Operation) error {
	if !epoch.Allows(role, op) {
		return &Violation{
			Invariant: InvariantCausalBarrier,
			Context:   fmt.Sprintf("role=%s operation=%s", role, op),
		}
	}
	return nil
}

// CheckVetoSupremacy fails iff vetoCount > 0 and the recovery window
// (window, counted from recoveryStartMs) has not yet elapsed as of nowMs.
func CheckVetoSupremacy(vetoCount int, recoveryStartMs, nowMs int64, window time.Duration) error {
	elapsed := time.Duration(nowMs-recoveryStartMs) * time.Millisecond
	if vetoCount > 0 && elapsed < window {
		return &Violation{
			Invariant: InvariantVetoSupremacy,
			Context:   fmt.Sprintf("veto_count=%d elapsed_ms=%d window_ms=%d", vetoCount, elapsed.Milliseconds(), window.Milliseconds()),
		}
	}
	return nil
}
