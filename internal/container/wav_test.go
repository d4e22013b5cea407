package container_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcmbridge/internal/codec"
	"pcmbridge/internal/container"
	"pcmbridge/internal/pcmformat"
)

func TestWriteAndSniffRoundTrip(t *testing.T) {
	f := pcmformat.Format{Width: 16, Kind: pcmformat.Signed, Endian: pcmformat.LittleEndian}
	layout := pcmformat.NewFrameLayout(2, f)

	tmp, err := os.CreateTemp(t.TempDir(), "pcmbridge-*.wav")
	require.NoError(t, err)
	defer tmp.Close()

	w, err := container.NewWAVWriter(tmp, 48000, f, layout)
	require.NoError(t, err)

	frame := make([]byte, layout.BytesPerFrame)
	codec.Encode(0.25, f, frame[0:2])
	codec.Encode(-0.25, f, frame[2:4])
	require.NoError(t, w.WriteFrame(frame))
	require.NoError(t, w.Close())

	_, err = tmp.Seek(0, 0)
	require.NoError(t, err)

	gotFormat, gotLayout, rate, ok, err := container.Sniff(tmp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 16, gotFormat.Width)
	assert.Equal(t, 2, gotLayout.Channels)
	assert.Equal(t, 48000, rate)
}

func TestSniffDetects8BitAsUnsigned(t *testing.T) {
	f := pcmformat.Format{Width: 8, Kind: pcmformat.Unsigned, Endian: pcmformat.LittleEndian}
	layout := pcmformat.NewFrameLayout(1, f)

	tmp, err := os.CreateTemp(t.TempDir(), "pcmbridge-*.wav")
	require.NoError(t, err)
	defer tmp.Close()

	w, err := container.NewWAVWriter(tmp, 8000, f, layout)
	require.NoError(t, err)

	frame := make([]byte, layout.BytesPerFrame)
	codec.Encode(0.0, f, frame) // silence on 8-bit unsigned packs as 0x80
	require.NoError(t, w.WriteFrame(frame))
	require.NoError(t, w.Close())

	_, err = tmp.Seek(0, 0)
	require.NoError(t, err)

	gotFormat, _, _, ok, err := container.Sniff(tmp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pcmformat.Unsigned, gotFormat.Kind, "canonical 8-bit WAV PCM is unsigned, not signed")
}

func TestSniffRejectsNonWAV(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "pcmbridge-*.raw")
	require.NoError(t, err)
	defer tmp.Close()

	_, err = tmp.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	_, err = tmp.Seek(0, 0)
	require.NoError(t, err)

	_, _, _, ok, err := container.Sniff(tmp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWAVWriterRejectsFloat(t *testing.T) {
	f := pcmformat.Format{Width: 32, Kind: pcmformat.Float, Endian: pcmformat.LittleEndian}
	layout := pcmformat.NewFrameLayout(1, f)

	tmp, err := os.CreateTemp(t.TempDir(), "pcmbridge-*.wav")
	require.NoError(t, err)
	defer tmp.Close()

	_, err = container.NewWAVWriter(tmp, 48000, f, layout)
	assert.Error(t, err)
}
