package recovery

import (
	"os"
	"path/filepath"
	"testing"
)

type memMetadata struct {
	epoch uint32
}

func (m *memMetadata) GetEpoch() (uint32, error) { return m.epoch, nil }
func (m *memMetadata) UpdateEpoch(v uint32) error {
	m.epoch = v
	return nil
}

func TestClassifyAllThreeStates(t *testing.T) {
	cases := []struct {
		metadata, blob uint64
		want           State
	}{
		{5, 5, Consistent},
		{5, 6, BlobAhead},
		{6, 5, MetadataAhead},
	}
	for _, c := range cases {
		if got := Classify(c.metadata, c.blob); got != c.want {
			t.Errorf("Classify(%d, %d) = %s, want %s", c.metadata, c.blob, got, c.want)
		}
	}
}

func TestHealBlobAheadUpdatesMetadata(t *testing.T) {
	meta := &memMetadata{epoch: 1}
	state, err := Heal("", meta, 2, nil)
	if err != nil {
		t.Fatalf("heal: %v", err)
	}
	if state != BlobAhead {
		t.Fatalf("state = %s, want BlobAhead", state)
	}
	if meta.epoch != 2 {
		t.Fatalf("metadata epoch = %d, want 2", meta.epoch)
	}
}

func TestHealMetadataAheadIsNeverHealed(t *testing.T) {
	meta := &memMetadata{epoch: 3}
	_, err := Heal("", meta, 2, nil)
	if err != ErrMetadataAheadOfBlob {
		t.Fatalf("expected ErrMetadataAheadOfBlob, got %v", err)
	}
	if meta.epoch != 3 {
		t.Fatal("metadata must not be mutated on MetadataAhead")
	}
}

func TestHealRemovesResidualTempFile(t *testing.T) {
	dir := t.TempDir()
	residual := filepath.Join(dir, "vault.bin.tmp")
	if err := os.WriteFile(residual, []byte("x"), 0o600); err != nil {
		t.Fatalf("seed residual: %v", err)
	}
	meta := &memMetadata{epoch: 1}
	if _, err := Heal(residual, meta, 1, nil); err != nil {
		t.Fatalf("heal: %v", err)
	}
	if _, err := os.Stat(residual); !os.IsNotExist(err) {
		t.Fatal("residual temp file should have been removed")
	}
}
