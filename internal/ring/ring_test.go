package ring_test

import (
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcmbridge/internal/ring"
)

// Property 4: SPSC — under concurrent producer/consumer, the consumer's
// byte stream equals the producer's byte stream exactly.
func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 1 << 20
	r := ring.New(4096)

	source := make([]byte, total)
	_, err := rand.Read(source)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		off := 0
		for off < total {
			n := r.Write(source[off:])
			off += n
		}
	}()

	got := make([]byte, 0, total)
	go func() {
		defer wg.Done()
		buf := make([]byte, 256)
		for len(got) < total {
			n := r.Read(buf)
			got = append(got, buf[:n]...)
		}
	}()

	wg.Wait()
	assert.Equal(t, source, got)
}

// Property 5: frame alignment — the ring's occupancy, observed only at
// frame-boundary operations, is always an exact multiple of the frame
// size.
func TestFrameAlignment(t *testing.T) {
	const bytesPerFrame = 6 // e.g. 2 channels x 24-bit
	r := ring.New(bytesPerFrame * 8)

	frame := []byte{1, 2, 3, 4, 5, 6}
	for i := 0; i < 5; i++ {
		ok := r.WriteFrame(frame)
		require.True(t, ok)
		assert.Equal(t, 0, r.ReadSpace()%bytesPerFrame)
	}

	out := make([]byte, bytesPerFrame)
	for i := 0; i < 5; i++ {
		ok := r.ReadFrame(out)
		require.True(t, ok)
		assert.Equal(t, frame, out)
		assert.Equal(t, 0, r.ReadSpace()%bytesPerFrame)
	}
}

func TestWriteFrameAllOrNothing(t *testing.T) {
	r := ring.New(10)
	frame := make([]byte, 6)

	assert.True(t, r.WriteFrame(frame))
	assert.False(t, r.WriteFrame(frame), "second 6-byte frame should not fit in a 10-byte ring with 6 used")
	assert.Equal(t, 6, r.ReadSpace())
}

func TestCapacityAndEmpty(t *testing.T) {
	r := ring.New(128)
	assert.Equal(t, 128, r.Capacity())
	assert.Equal(t, 0, r.ReadSpace())
	assert.Equal(t, 128, r.WriteSpace())
}
