package ioworker_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcmbridge/internal/engine"
	"pcmbridge/internal/ioworker"
	"pcmbridge/internal/pcmformat"
	"pcmbridge/internal/ring"
	"pcmbridge/internal/runstate"
)

func stereo8() pcmformat.FrameLayout {
	f := pcmformat.Format{Width: 8, Kind: pcmformat.Unsigned, Endian: pcmformat.LittleEndian}
	return pcmformat.NewFrameLayout(2, f)
}

func TestStdinWorkerReadsUntilEOF(t *testing.T) {
	layout := stereo8()
	data := bytes.Repeat([]byte{1, 2}, 10) // 10 frames of 2 bytes each
	r := ring.New(layout.BytesPerFrame * 20)
	state := runstate.New(0, 0)
	state.SetCanCapture(true)

	w := &ioworker.StdinWorker{
		Reader:      bytes.NewReader(data),
		Ring:        r,
		Layout:      layout,
		State:       state,
		Sync:        engine.NewSync(),
		PeriodBytes: len(data), // no consumer in this test, so the drain wait must pass immediately
		Quiet:       true,
	}

	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(data), r.ReadSpace())
	assert.Equal(t, int64(10), state.CapturedFrames())
}

func TestStdinWorkerHonorsDuration(t *testing.T) {
	layout := stereo8()
	data := bytes.Repeat([]byte{9, 9}, 100)
	r := ring.New(layout.BytesPerFrame * 200)
	state := runstate.New(0, 3) // stop after 3 frames
	state.SetCanCapture(true)

	w := &ioworker.StdinWorker{
		Reader:      bytes.NewReader(data),
		Ring:        r,
		Layout:      layout,
		State:       state,
		Sync:        engine.NewSync(),
		PeriodBytes: layout.BytesPerFrame,
		Quiet:       true,
	}

	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.CapturedFrames())
}

func TestStdinWorkerPropagatesReadError(t *testing.T) {
	layout := stereo8()
	r := ring.New(layout.BytesPerFrame * 4)
	state := runstate.New(0, 0)
	state.SetCanCapture(true)

	w := &ioworker.StdinWorker{
		Reader:      erroringReader{},
		Ring:        r,
		Layout:      layout,
		State:       state,
		Sync:        engine.NewSync(),
		PeriodBytes: layout.BytesPerFrame,
		Quiet:       true,
	}

	err := w.Run(context.Background())
	assert.Error(t, err)
}

type erroringReader struct{}

func (erroringReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestStdoutWorkerWritesAllFrames(t *testing.T) {
	layout := stereo8()
	r := ring.New(layout.BytesPerFrame * 10)
	state := runstate.New(0, 0)
	state.SetCanCapture(true)

	frame := []byte{5, 6}
	for i := 0; i < 4; i++ {
		require.True(t, r.WriteFrame(frame))
	}

	var out bytes.Buffer
	w := &ioworker.StdoutWorker{
		Writer: &out,
		Ring:   r,
		Layout: layout,
		State:  state,
		Sync:   engine.NewSync(),
		Quiet:  true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go func() {
		<-ctx.Done()
		state.Stop()
		w.Sync.WakeAll()
	}()

	err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat(frame, 4), out.Bytes())
}

func TestStdoutWorkerAbandonsAfterRepeatedWriteErrors(t *testing.T) {
	layout := stereo8()
	r := ring.New(layout.BytesPerFrame * 10)
	state := runstate.New(0, 0)
	state.SetCanCapture(true)
	for i := 0; i < 8; i++ {
		require.True(t, r.WriteFrame([]byte{1, 2}))
	}

	w := &ioworker.StdoutWorker{
		Writer: alwaysErrorWriter{},
		Ring:   r,
		Layout: layout,
		State:  state,
		Sync:   engine.NewSync(),
		Quiet:  true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go func() {
		<-ctx.Done()
		state.Stop()
		w.Sync.WakeAll()
	}()

	err := w.Run(ctx)
	require.NoError(t, err, "repeated write errors abandon the frame, not the worker")
	assert.Equal(t, 0, r.ReadSpace(), "every frame was drained from the ring despite write failures")
}

type alwaysErrorWriter struct{}

func (alwaysErrorWriter) Write(p []byte) (int, error) { return 0, io.ErrShortWrite }

func TestQuietOverrunReporterReturnsOnCancel(t *testing.T) {
	state := runstate.New(0, 0)
	r := ring.New(16)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ioworker.OverrunReporter(ctx, state, r, 5*time.Millisecond, true)
		close(done)
	}()
	state.AddOverrun()
	<-ctx.Done()
	<-done
}
