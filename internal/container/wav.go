// Package container is a thin, optional WAV shim layered strictly above the
// raw-PCM codec and ring: headerless PCM on stdin/stdout remains the
// default and fully-specified behavior, and nothing here replaces it.
// --file-format wav (or auto-detection on --file) only changes how bytes
// at the edge of the file are framed; the core never sees a container.
package container

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pcmbridge/internal/codec"
	"pcmbridge/internal/pcmformat"
)

// WAVWriter adapts the packed-PCM frame the stdout tool already produces
// into the per-sample int buffers go-audio/wav's encoder expects.
type WAVWriter struct {
	enc    *wav.Encoder
	format pcmformat.Format
	layout pcmformat.FrameLayout
}

// NewWAVWriter opens a WAV encoder over w for the given sample rate and PCM
// layout. Only integer formats are supported, matching the container's
// documented audioFormat=1 (PCM) tag.
func NewWAVWriter(w io.WriteSeeker, sampleRate int, format pcmformat.Format, layout pcmformat.FrameLayout) (*WAVWriter, error) {
	if format.Kind == pcmformat.Float {
		return nil, fmt.Errorf("container: WAV output does not support floating-point PCM")
	}
	return &WAVWriter{
		enc:    wav.NewEncoder(w, sampleRate, format.Width, layout.Channels, 1),
		format: format,
		layout: layout,
	}, nil
}

// WriteFrame decodes one packed PCM frame through the core codec and
// appends it to the WAV file as one int sample per channel.
func (w *WAVWriter) WriteFrame(frame []byte) error {
	ssb := w.layout.SampleSizeBytes
	scale := w.format.Scale()

	ints := make([]int, w.layout.Channels)
	for c := 0; c < w.layout.Channels; c++ {
		sample := codec.Decode(frame[c*ssb:(c+1)*ssb], w.format)
		ints[c] = int(float64(sample) * scale)
	}

	return w.enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: w.layout.Channels, SampleRate: int(w.enc.SampleRate)},
		Data:           ints,
		SourceBitDepth: w.format.Width,
	})
}

// Close finalizes the RIFF header (which needs the final byte counts) and
// closes the underlying encoder.
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}

// Sniff reports whether r begins with a RIFF/WAVE header, and if so the PCM
// format and layout the header describes. r must be seekable; on a
// negative result the read position is restored to the start so the caller
// can fall back to treating the stream as raw PCM.
func Sniff(r io.ReadSeeker) (format pcmformat.Format, layout pcmformat.FrameLayout, sampleRate int, ok bool, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		_, serr := r.Seek(0, io.SeekStart)
		return pcmformat.Format{}, pcmformat.FrameLayout{}, 0, false, serr
	}
	dec.ReadInfo()

	// Canonical WAV PCM is unsigned only at 8 bits; every wider depth is
	// signed. go-audio/wav itself follows this convention when building
	// IntBuffer samples.
	kind := pcmformat.Signed
	if dec.BitDepth == 8 {
		kind = pcmformat.Unsigned
	}

	format = pcmformat.Format{
		Width:  int(dec.BitDepth),
		Kind:   kind,
		Endian: pcmformat.LittleEndian, // RIFF PCM is always little-endian on the wire
	}
	if verr := format.Validate(); verr != nil {
		return pcmformat.Format{}, pcmformat.FrameLayout{}, 0, false,
			fmt.Errorf("container: unsupported WAV bit depth %d: %w", dec.BitDepth, verr)
	}

	layout = pcmformat.NewFrameLayout(int(dec.NumChans), format)
	return format, layout, int(dec.SampleRate), true, nil
}
