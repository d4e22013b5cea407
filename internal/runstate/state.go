// Package runstate holds the fields the real-time engine and the non-RT
// I/O worker share without locking (spec §3 RunState, §5 "shared-resource
// policy"). Every field here is either read-mostly, single-writer, or a
// counter whose exact value is non-critical, so plain atomics suffice —
// the RT side must never take a blocking lock to touch any of this.
package runstate

import (
	"math"
	"sync/atomic"
)

// State is the process-wide run state, created once by the lifecycle and
// shared by reference with the engine and the I/O worker.
type State struct {
	canProcess int32
	canCapture int32
	run        int32

	prebufferPercentBits uint32 // math.Float32bits(percent), atomic access

	underruns int64
	overruns  int64

	durationFrames int64 // 0 = unlimited
	capturedFrames int64
}

// New returns a State with run=true and the given prebuffer percent and
// duration (0 = unlimited).
func New(prebufferPercent float32, durationFrames int64) *State {
	s := &State{
		run:            1,
		durationFrames: durationFrames,
	}
	s.SetPrebufferPercent(prebufferPercent)
	return s
}

func (s *State) SetCanProcess(v bool) { atomic.StoreInt32(&s.canProcess, boolToInt32(v)) }
func (s *State) CanProcess() bool     { return atomic.LoadInt32(&s.canProcess) != 0 }

func (s *State) SetCanCapture(v bool) { atomic.StoreInt32(&s.canCapture, boolToInt32(v)) }
func (s *State) CanCapture() bool     { return atomic.LoadInt32(&s.canCapture) != 0 }

func (s *State) Stop()      { atomic.StoreInt32(&s.run, 0) }
func (s *State) Running() bool { return atomic.LoadInt32(&s.run) != 0 }

// PrebufferPercent returns the current gate threshold. Once disarmed via
// SetPrebufferPercent(0) it never re-engages (spec §5 "pre-buffer
// rationale").
func (s *State) PrebufferPercent() float32 {
	return math.Float32frombits(atomic.LoadUint32(&s.prebufferPercentBits))
}

func (s *State) SetPrebufferPercent(p float32) {
	atomic.StoreUint32(&s.prebufferPercentBits, math.Float32bits(p))
}

func (s *State) AddUnderrun() { atomic.AddInt64(&s.underruns, 1) }
func (s *State) Underruns() int64 { return atomic.LoadInt64(&s.underruns) }

func (s *State) AddOverrun() { atomic.AddInt64(&s.overruns, 1) }
func (s *State) Overruns() int64 { return atomic.LoadInt64(&s.overruns) }

// DurationFrames is the frame budget for this run; 0 means unlimited.
func (s *State) DurationFrames() int64 { return atomic.LoadInt64(&s.durationFrames) }

// AddCapturedFrames advances the worker's cumulative frame count and
// reports the new total.
func (s *State) AddCapturedFrames(n int64) int64 {
	return atomic.AddInt64(&s.capturedFrames, n)
}

func (s *State) CapturedFrames() int64 { return atomic.LoadInt64(&s.capturedFrames) }

// DurationReached reports whether the configured duration (if any) has
// been met or exceeded.
func (s *State) DurationReached() bool {
	d := s.DurationFrames()
	return d > 0 && s.CapturedFrames() >= d
}

func boolToInt32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
