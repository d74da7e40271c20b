// Package chaff generates padding and decoy Sync frames indistinguishable
// from genuine traffic at the frame level, plus the timing jitter used to
// schedule them. It has no dependency on session state: every function is
// a pure generator over CSPRNG output, in keeping with spec.md §9's note
// that scheduling-neutral utilities stay outside the synchronous core.
package chaff

import (
	"crypto/rand"
	"io"
	"math/big"
	"time"

	"github.com/aeternum/vault/pkg/wire/frame"
)

// JitterMinMs and JitterMaxMs bound, in milliseconds, the uniform
// distribution TimingJitter draws from.
const (
	JitterMinMs = 50
	JitterMaxMs = 200
)

// GeneratePadding returns FRAME_SIZE - currentSize bytes of CSPRNG
// output. It panics if currentSize exceeds frame.FrameSize, since that
// indicates a caller bug rather than a runtime condition to recover
// from.
func GeneratePadding(currentSize int) ([]byte, error) {
	if currentSize > frame.FrameSize {
		panic("chaff: currentSize exceeds FrameSize")
	}
	out := make([]byte, frame.FrameSize-currentSize)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateChaffSync produces a decoy Sync frame at the given epoch: a
// random nonce, a random ciphertext-sized body, a random tag, padded to
// the fixed frame size. It is indistinguishable in size and byte
// profile from a real Sync frame because it exercises the identical
// frame.Encode path with random inputs instead of a real AEAD output.
func CreateChaffSync(epoch uint32) ([frame.FrameSize]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return [frame.FrameSize]byte{}, err
	}
	var tag [16]byte
	if _, err := io.ReadFull(rand.Reader, tag[:]); err != nil {
		return [frame.FrameSize]byte{}, err
	}

	bodyLen, err := randomInt(frame.MaxBodyLen + 1)
	if err != nil {
		return [frame.FrameSize]byte{}, err
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(rand.Reader, body); err != nil {
		return [frame.FrameSize]byte{}, err
	}

	f := frame.Frame{Nonce: nonce, Epoch: epoch, PayloadType: frame.PayloadSync, Body: body, AuthTag: tag}
	paddingLen := frame.FrameSize - 24 - 4 - 1 - 2 - len(body) - 16
	padding := make([]byte, paddingLen)
	if _, err := io.ReadFull(rand.Reader, padding); err != nil {
		return [frame.FrameSize]byte{}, err
	}
	return frame.Encode(f, padding)
}

// TimingJitter returns a duration drawn uniformly from
// [JitterMinMs, JitterMaxMs] milliseconds, used to schedule chaff
// traffic so its timing does not betray the absence of real messages.
func TimingJitter() (time.Duration, error) {
	span := JitterMaxMs - JitterMinMs
	offset, err := randomInt(span + 1)
	if err != nil {
		return 0, err
	}
	return time.Duration(JitterMinMs+offset) * time.Millisecond, nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
