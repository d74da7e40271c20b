// Package version implements Aeternum Wire's protocol version negotiation
// (spec.md §4.12): a closed {major, minor} pair, a capability bitmask, and
// the best-match selection rule a client and server run before a PQRR
// session may begin. It mirrors the teacher's pkg/session enum+String()
// style for its own small closed enumeration (the capability bitmask).
package version

import "errors"

// ErrVersionNegotiationFailed is returned when a client and server share
// no common supported version.
var ErrVersionNegotiationFailed = errors.New("version: no common supported version")

// Version is a protocol version identifier. Same Major implies wire
// compatibility; Minor differences are additive and ignored for
// compatibility purposes.
type Version struct {
	Major uint8
	Minor uint8
}

// Capability is a single bit in a VersionNegotiationMessage's
// capabilities bitmask.
type Capability uint32

const (
	CapabilityHybridHandshake Capability = 1 << iota
	CapabilityChaffSync
	CapabilityVetoSignaling
	CapabilityShadowWrapping
)

// Has reports whether mask includes capability c.
func (mask Capability) Has(c Capability) bool {
	return mask&c != 0
}

// VersionNegotiationMessage is exchanged once per connection before any
// PQRR or Wire traffic flows.
type VersionNegotiationMessage struct {
	Supported    []Version
	Preferred    Version
	Capabilities Capability
}

// Compatible reports whether a and b are wire-compatible: same major
// version. Minor version differences never block compatibility.
func Compatible(a, b Version) bool {
	return a.Major == b.Major
}

// UpgradeRequired reports whether the client's major version trails the
// server's, in which case only read-only operations are allowed and
// PQRR is forbidden until the client upgrades.
func UpgradeRequired(client, server Version) bool {
	return client.Major < server.Major
}

// CanInitiatePqrr reports whether the local version can initiate PQRR
// operations against peer: true iff the major versions are equal.
func CanInitiatePqrr(local, peer Version) bool {
	return local.Major == peer.Major
}

// SelectBestMatch runs the server's side of negotiation against a
// client's VersionNegotiationMessage: if the server supports the
// client's preferred version, that wins; otherwise the first version in
// the client's declared supported order that the server also supports
// wins. Returns ErrVersionNegotiationFailed if no overlap exists.
func SelectBestMatch(client VersionNegotiationMessage, serverSupported []Version) (Version, error) {
	if contains(serverSupported, client.Preferred) {
		return client.Preferred, nil
	}
	for _, candidate := range client.Supported {
		if contains(serverSupported, candidate) {
			return candidate, nil
		}
	}
	return Version{}, ErrVersionNegotiationFailed
}

func contains(versions []Version, v Version) bool {
	for _, candidate := range versions {
		if candidate == v {
			return true
		}
	}
	return false
}
