// Package ioworker implements the non-real-time side of each tool: the
// stdin tool's fd-to-ring read loop and the stdout tool's ring-to-fd write
// loop (spec §4.4), plus the background reporters that log underruns and
// overruns without ever touching the real-time callback.
package ioworker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"pcmbridge/internal/engine"
	"pcmbridge/internal/pcmformat"
	"pcmbridge/internal/ring"
	"pcmbridge/internal/runstate"
)

const maxConsecutiveWriteErrors = 5

// StdinWorker drains Reader into Ring one frame at a time until EOF, a read
// error, the configured duration, or ctx cancellation — whichever comes
// first. It is the fd-side counterpart of the engine's playback direction.
type StdinWorker struct {
	Reader      io.Reader
	Ring        *ring.Ring
	Layout      pcmformat.FrameLayout
	State       *runstate.State
	Sync        *engine.Sync
	PeriodBytes int // one real-time period's worth of ring bytes, for the post-EOF drain wait
	Quiet       bool
}

// Run blocks until termination. On normal EOF it drains down to one
// period's worth of buffered data before returning, so the engine finishes
// playing what was already captured rather than the process exiting out
// from under it; a duration-reached exit skips that drain, matching the
// original's own shortcut.
func (w *StdinWorker) Run(ctx context.Context) error {
	frame := make([]byte, w.Layout.BytesPerFrame)
	roff := 0

	for {
		if ctx.Err() != nil || !w.State.Running() {
			return nil
		}

		if !w.State.CanCapture() || w.Ring.WriteSpace() < w.Layout.BytesPerFrame {
			w.Sync.Wait()
			continue
		}

		if w.State.DurationFrames() > 0 && w.State.CapturedFrames() >= w.State.DurationFrames() {
			w.logf("io thread finished")
			return nil
		}

		n, err := w.Reader.Read(frame[roff:])
		if n > 0 {
			roff += n
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.logf("pcmbridge-stdin: EOF")
				w.drainWait(ctx)
				return nil
			}
			return fmt.Errorf("ioworker: stdin read: %w", err)
		}
		if roff < len(frame) {
			continue
		}
		roff = 0

		w.Ring.WriteFrame(frame)
		w.State.AddCapturedFrames(1)
	}
}

// drainWait blocks while the prebuffer gate is disarmed and the ring still
// holds more than one period's data, giving the engine a chance to play it
// out before the caller closes the stream. If the gate is still armed (the
// engine never started playing), it returns at once.
func (w *StdinWorker) drainWait(ctx context.Context) {
	if w.State.PrebufferPercent() != 0 {
		return
	}
	for w.Ring.AtomicReadSpace() > w.PeriodBytes {
		if ctx.Err() != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (w *StdinWorker) logf(format string, args ...any) {
	if !w.Quiet {
		log.Printf(format, args...)
	}
}

// StdoutWorker drains Ring into Writer one frame at a time, retrying a
// short or failed write until the whole frame is out or the write has
// failed maxConsecutiveWriteErrors times in a row, in which case that frame
// is dropped. It is the fd-side counterpart of the engine's capture
// direction.
type StdoutWorker struct {
	Writer io.Writer
	Ring   *ring.Ring
	Layout pcmformat.FrameLayout
	State  *runstate.State
	Sync   *engine.Sync
	Quiet  bool
}

// Run blocks until ctx is cancelled, the run state is stopped, or the
// configured duration has been written. Repeated write failures drop
// frames but do not end the loop.
func (w *StdoutWorker) Run(ctx context.Context) error {
	frame := make([]byte, w.Layout.BytesPerFrame)
	writeErrors := 0

	for {
		if ctx.Err() != nil || !w.State.Running() {
			return nil
		}

		for w.State.CanCapture() && w.Ring.ReadSpace() >= w.Layout.BytesPerFrame {
			if w.State.DurationReached() {
				return nil
			}
			w.Ring.ReadFrame(frame)

			for off := 0; off < len(frame); {
				n, err := w.Writer.Write(frame[off:])
				off += n
				if err == nil {
					writeErrors = 0
					continue
				}
				writeErrors++
				if writeErrors >= maxConsecutiveWriteErrors {
					if !w.Quiet {
						log.Printf("FATAL: %d consecutive write errors, dropping frame: %v", writeErrors, err)
					}
					writeErrors = 0
					break
				}
				if !w.Quiet {
					log.Printf("buffer not emptied: %d|%d", w.Ring.ReadSpace(), w.Ring.AtomicWriteSpace())
				}
			}
			w.State.AddCapturedFrames(1)
		}

		w.Sync.Wait()
	}
}

// OverrunReporter logs the current overrun count at most once per interval,
// and only when it has changed since the last report. Grounded on
// jack-stdout.c's message_thread, which rate-limits the same message to
// once every two seconds by comparing timestamps.
func OverrunReporter(ctx context.Context, state *runstate.State, r *ring.Ring, interval time.Duration, quiet bool) {
	if quiet {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := state.Overruns(); n != last {
				log.Printf("%d buffer overruns - bytes in buffer: %d", n, r.AtomicReadSpace())
				last = n
			}
		}
	}
}

// UnderrunReporter polls the underrun count and logs one line each time it
// has changed since the previous poll; it applies no rate limit beyond the
// poll interval: the stdin tool's original does not rate-limit its
// underrun message, only the stdout tool's overrun message.
func UnderrunReporter(ctx context.Context, state *runstate.State, pollInterval time.Duration, quiet bool) {
	if quiet {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := state.Underruns(); n != last {
				log.Println("underrun..")
				last = n
			}
		}
	}
}
