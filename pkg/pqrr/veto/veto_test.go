package veto

import (
	"testing"
	"time"

	"github.com/aeternum/vault/pkg/epoch"
)

type fakeVerifier struct {
	valid bool
}

func (f fakeVerifier) VerifyVetoSignature(epoch.DeviceId, string, []byte) bool { return f.valid }

func TestAcceptVetoRejectsInvalidSignature(t *testing.T) {
	w := NewRecoveryWindow("rec_1", 0)
	var dev epoch.DeviceId
	dev[0] = 1
	err := w.AcceptVeto(dev, []byte("sig"), fakeVerifier{valid: false})
	if err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if w.VetoCount != 0 {
		t.Fatal("veto count must not increase on invalid signature")
	}
}

func TestAcceptVetoRejectsDuplicateDevice(t *testing.T) {
	w := NewRecoveryWindow("rec_1", 0)
	var dev epoch.DeviceId
	dev[0] = 1
	if err := w.AcceptVeto(dev, []byte("sig"), fakeVerifier{valid: true}); err != nil {
		t.Fatalf("first veto: %v", err)
	}
	if err := w.AcceptVeto(dev, []byte("sig"), fakeVerifier{valid: true}); err != ErrAlreadyVetoed {
		t.Fatalf("expected ErrAlreadyVetoed, got %v", err)
	}
	if w.VetoCount != 1 {
		t.Fatalf("veto count = %d, want 1", w.VetoCount)
	}
}

func TestCanCommitBlocksWithinWindowWithVeto(t *testing.T) {
	w := NewRecoveryWindow("rec_1", 0)
	var dev epoch.DeviceId
	dev[0] = 1
	_ = w.AcceptVeto(dev, []byte("sig"), fakeVerifier{valid: true})

	nowMs := int64(time.Hour / time.Millisecond)
	if err := w.CanCommit(nowMs, DefaultWindow, 5*time.Minute); err == nil {
		t.Fatal("expected veto to block commit within the window")
	}
}

func TestCanCommitSucceedsAfterWindowWithoutVeto(t *testing.T) {
	w := NewRecoveryWindow("rec_1", 0)
	nowMs := int64((49 * time.Hour) / time.Millisecond)
	if err := w.CanCommit(nowMs, DefaultWindow, 5*time.Minute); err != nil {
		t.Fatalf("expected commit to succeed after window elapses with no veto: %v", err)
	}
}

func TestCanCommitFailsAfterWindowIfVetoed(t *testing.T) {
	w := NewRecoveryWindow("rec_1", 0)
	var dev epoch.DeviceId
	dev[0] = 1
	_ = w.AcceptVeto(dev, []byte("sig"), fakeVerifier{valid: true})

	nowMs := int64((49 * time.Hour) / time.Millisecond)
	if err := w.CanCommit(nowMs, DefaultWindow, 5*time.Minute); err == nil {
		t.Fatal("a recorded veto must block commit even after the window elapses")
	}
}
