package shadowwrite

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aeternum/vault/internal/config"
)

func testConfig() config.ShadowWriteConfig {
	cfg := config.ShadowWriteConfig{}.WithDefaults()
	return cfg
}

func TestCommitReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "vault.bin")
	if err := os.WriteFile(target, []byte("old"), 0o600); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	h, err := Begin(target, testConfig())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.WriteAndSync([]byte("new-contents")); err != nil {
		t.Fatalf("write and sync: %v", err)
	}
	if err := h.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if !bytes.Equal(got, []byte("new-contents")) {
		t.Fatalf("target = %q, want %q", got, "new-contents")
	}
	if _, err := os.Stat(target + testConfig().TempSuffix); !os.IsNotExist(err) {
		t.Fatal("temp file should be gone after commit")
	}
}

func TestDroppedHandleRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "vault.bin")
	cfg := testConfig()

	h, err := Begin(target, cfg)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.WriteAndSync([]byte("abandoned")); err != nil {
		t.Fatalf("write and sync: %v", err)
	}
	h.Drop()

	if _, err := os.Stat(target + cfg.TempSuffix); !os.IsNotExist(err) {
		t.Fatal("temp file should be removed after drop")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatal("target must not have been created by an uncommitted handle")
	}
}

func TestFailureBeforeCommitLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "vault.bin")
	original := []byte("pristine")
	if err := os.WriteFile(target, original, 0o600); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	h, err := Begin(target, testConfig())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.WriteAndSync([]byte("in-flight")); err != nil {
		t.Fatalf("write and sync: %v", err)
	}
	// Simulate a crash before commit: drop instead of committing.
	h.Drop()

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Fatalf("target mutated before commit: got %q want %q", got, original)
	}
}

func TestCleanupResidualIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	residual := filepath.Join(dir, "vault.bin.tmp")
	if err := os.WriteFile(residual, []byte("leftover"), 0o600); err != nil {
		t.Fatalf("seed residual: %v", err)
	}
	if err := CleanupResidual(residual); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := CleanupResidual(residual); err != nil {
		t.Fatalf("cleanup of already-removed file should not error: %v", err)
	}
}
