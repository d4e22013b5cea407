// Package engine implements the real-time process callback (spec §4.3):
// the code PortAudio invokes once per period on its own real-time thread.
// Every method here must return quickly, never block, and never allocate.
package engine

import (
	"math"

	"pcmbridge/internal/codec"
	"pcmbridge/internal/pcmformat"
	"pcmbridge/internal/ring"
	"pcmbridge/internal/runstate"
)

// Engine couples the ring, the codec format and the shared run state on
// one side of the real-time boundary. A tool instantiates exactly one of
// ProcessPlayback (stdin tool) or ProcessCapture (stdout tool) per period.
type Engine struct {
	Ring   *ring.Ring
	Format pcmformat.Format
	Layout pcmformat.FrameLayout
	State  *runstate.State
	Sync   *Sync

	scratch []byte // bytes-per-frame scratch, reused every call; never grown here
}

// New builds an Engine. scratch is sized once, up front — the RT methods
// below never resize it.
func New(r *ring.Ring, format pcmformat.Format, layout pcmformat.FrameLayout, state *runstate.State, sync *Sync) *Engine {
	return &Engine{
		Ring:    r,
		Format:  format,
		Layout:  layout,
		State:   state,
		Sync:    sync,
		scratch: make([]byte, layout.BytesPerFrame),
	}
}

// ProcessPlayback is the stdin-tool direction: ring -> ports. out holds one
// slice per channel, each len(out[c]) == the period length in frames.
func (e *Engine) ProcessPlayback(out [][]float32) {
	if !e.State.CanProcess() {
		return
	}

	avail := e.Ring.ReadSpace()
	gate := int(math.Ceil(float64(e.Ring.Capacity()) * float64(e.State.PrebufferPercent()) / 100.0))
	if avail < gate {
		silence(out)
		return
	}
	// Once the gate has been passed, it never re-engages (spec §5).
	e.State.SetPrebufferPercent(0)

	nframes := periodLength(out)
	needed := nframes * e.Layout.BytesPerFrame

	if !e.State.CanCapture() || avail < needed {
		silence(out)
		if e.State.CanCapture() && avail < needed {
			e.State.AddUnderrun()
		}
		return
	}

	ssb := e.Layout.SampleSizeBytes
	for i := 0; i < nframes; i++ {
		if !e.Ring.ReadFrame(e.scratch) {
			// Cannot happen given the avail check above, but leaves ports
			// untouched for the remainder rather than reading torn data.
			break
		}
		for c := 0; c < e.Layout.Channels; c++ {
			out[c][i] = codec.Decode(e.scratch[c*ssb:(c+1)*ssb], e.Format)
		}
	}

	e.Sync.TrySignal()
}

// ProcessCapture is the stdout-tool direction: ports -> ring. in holds one
// slice per channel, each len(in[c]) == the period length in frames.
func (e *Engine) ProcessCapture(in [][]float32) {
	if !e.State.CanProcess() || !e.State.CanCapture() {
		return
	}

	nframes := periodLength(in)
	ssb := e.Layout.SampleSizeBytes

	for i := 0; i < nframes; i++ {
		if e.Ring.WriteSpace() < e.Layout.BytesPerFrame {
			e.State.AddOverrun()
			break
		}
		for c := 0; c < e.Layout.Channels; c++ {
			codec.Encode(in[c][i], e.Format, e.scratch[c*ssb:(c+1)*ssb])
		}
		e.Ring.Write(e.scratch)
	}

	e.Sync.TrySignal()
}

func periodLength(buffers [][]float32) int {
	if len(buffers) == 0 {
		return 0
	}
	return len(buffers[0])
}

func silence(out [][]float32) {
	for c := range out {
		clear(out[c])
	}
}
