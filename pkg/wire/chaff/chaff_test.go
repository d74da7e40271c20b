package chaff

import (
	"math"
	"testing"

	"github.com/aeternum/vault/pkg/wire/frame"
)

func shannonEntropy(data []byte) float64 {
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	var entropy float64
	n := float64(len(data))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func TestGeneratePaddingFillsExactSize(t *testing.T) {
	padding, err := GeneratePadding(100)
	if err != nil {
		t.Fatalf("generate padding: %v", err)
	}
	if len(padding) != frame.FrameSize-100 {
		t.Fatalf("padding length = %d, want %d", len(padding), frame.FrameSize-100)
	}
}

func TestGeneratePaddingHasHighEntropy(t *testing.T) {
	padding, err := GeneratePadding(0)
	if err != nil {
		t.Fatalf("generate padding: %v", err)
	}
	if e := shannonEntropy(padding); e <= 7.0 {
		t.Fatalf("entropy = %f, want > 7 bits/byte", e)
	}
}

func TestCreateChaffSyncIsFrameSized(t *testing.T) {
	f, err := CreateChaffSync(7)
	if err != nil {
		t.Fatalf("create chaff sync: %v", err)
	}
	if len(f) != frame.FrameSize {
		t.Fatalf("chaff frame size = %d, want %d", len(f), frame.FrameSize)
	}
	decoded, err := frame.Decode(f[:])
	if err != nil {
		t.Fatalf("decode chaff frame: %v", err)
	}
	if decoded.PayloadType != frame.PayloadSync {
		t.Fatalf("payload type = %v, want PayloadSync", decoded.PayloadType)
	}
	if decoded.Epoch != 7 {
		t.Fatalf("epoch = %d, want 7", decoded.Epoch)
	}
}

func TestTimingJitterWithinBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d, err := TimingJitter()
		if err != nil {
			t.Fatalf("timing jitter: %v", err)
		}
		if d < JitterMinMs*1e6 || d > JitterMaxMs*1e6 {
			t.Fatalf("jitter %v out of bounds [%dms, %dms]", d, JitterMinMs, JitterMaxMs)
		}
	}
}
