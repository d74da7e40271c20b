package version

import "testing"

func TestCompatibleSameMajor(t *testing.T) {
	a := Version{Major: 1, Minor: 0}
	b := Version{Major: 1, Minor: 4}
	if !Compatible(a, b) {
		t.Fatal("expected versions with equal major to be compatible")
	}
}

func TestCompatibleDifferentMajor(t *testing.T) {
	a := Version{Major: 1, Minor: 0}
	b := Version{Major: 2, Minor: 0}
	if Compatible(a, b) {
		t.Fatal("expected versions with different major to be incompatible")
	}
}

func TestUpgradeRequired(t *testing.T) {
	client := Version{Major: 1}
	server := Version{Major: 2}
	if !UpgradeRequired(client, server) {
		t.Fatal("expected upgrade required when client major < server major")
	}
	if UpgradeRequired(server, client) {
		t.Fatal("did not expect upgrade required when client major > server major")
	}
}

func TestCanInitiatePqrrRequiresEqualMajor(t *testing.T) {
	if !CanInitiatePqrr(Version{Major: 1, Minor: 2}, Version{Major: 1, Minor: 9}) {
		t.Fatal("expected pqrr initiation allowed when majors equal")
	}
	if CanInitiatePqrr(Version{Major: 1}, Version{Major: 2}) {
		t.Fatal("did not expect pqrr initiation allowed when majors differ")
	}
}

func TestSelectBestMatchPrefersClientPreferredWhenSupported(t *testing.T) {
	client := VersionNegotiationMessage{
		Supported: []Version{{Major: 1, Minor: 0}, {Major: 1, Minor: 1}},
		Preferred: Version{Major: 1, Minor: 1},
	}
	server := []Version{{Major: 1, Minor: 0}, {Major: 1, Minor: 1}}

	got, err := SelectBestMatch(client, server)
	if err != nil {
		t.Fatalf("select best match: %v", err)
	}
	if got != client.Preferred {
		t.Fatalf("got %+v, want preferred %+v", got, client.Preferred)
	}
}

func TestSelectBestMatchFallsBackToFirstOverlap(t *testing.T) {
	client := VersionNegotiationMessage{
		Supported: []Version{{Major: 1, Minor: 0}, {Major: 1, Minor: 1}, {Major: 1, Minor: 2}},
		Preferred: Version{Major: 1, Minor: 2},
	}
	server := []Version{{Major: 1, Minor: 0}, {Major: 1, Minor: 1}}

	got, err := SelectBestMatch(client, server)
	if err != nil {
		t.Fatalf("select best match: %v", err)
	}
	if got != (Version{Major: 1, Minor: 0}) {
		t.Fatalf("got %+v, want first declared overlap {1 0}", got)
	}
}

func TestSelectBestMatchFailsOnNoOverlap(t *testing.T) {
	client := VersionNegotiationMessage{
		Supported: []Version{{Major: 1, Minor: 0}},
		Preferred: Version{Major: 1, Minor: 0},
	}
	server := []Version{{Major: 2, Minor: 0}}

	if _, err := SelectBestMatch(client, server); err != ErrVersionNegotiationFailed {
		t.Fatalf("expected ErrVersionNegotiationFailed, got %v", err)
	}
}

func TestCapabilityBitmask(t *testing.T) {
	mask := CapabilityHybridHandshake | CapabilityVetoSignaling
	if !mask.Has(CapabilityHybridHandshake) {
		t.Fatal("expected HybridHandshake bit set")
	}
	if mask.Has(CapabilityChaffSync) {
		t.Fatal("did not expect ChaffSync bit set")
	}
	if !mask.Has(CapabilityVetoSignaling) {
		t.Fatal("expected VetoSignaling bit set")
	}
}
