package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"pcmbridge/internal/audiodevice"
	"pcmbridge/internal/config"
	"pcmbridge/internal/container"
	"pcmbridge/internal/engine"
	"pcmbridge/internal/ioworker"
	"pcmbridge/internal/pcmformat"
	"pcmbridge/internal/ring"
	"pcmbridge/internal/runstate"
)

const (
	overrunReportPeriod = 2 * time.Second
	underrunPollPeriod  = 100 * time.Millisecond
)

// wireStream opens the PortAudio stream with the engine's RT methods as the
// callback, in the direction opts.Mode calls for.
func wireStream(dev *audiodevice.Device, eng *engine.Engine, mode config.Mode) error {
	if mode == config.StdinMode {
		return dev.OpenStream(framesPerBuffer, eng.ProcessPlayback)
	}
	return dev.OpenStream(framesPerBuffer, eng.ProcessCapture)
}

// runWorker opens the configured fd/file and runs the direction-appropriate
// I/O Worker loop to completion.
func runWorker(ctx context.Context, opts *config.Options, format pcmformat.Format, layout pcmformat.FrameLayout, sampleRate int, rb *ring.Ring, state *runstate.State, sync *engine.Sync) error {
	if opts.Mode == config.StdinMode {
		r, closeFn, err := openInput(opts)
		if err != nil {
			return err
		}
		defer closeFn()

		w := &ioworker.StdinWorker{
			Reader:      r,
			Ring:        rb,
			Layout:      layout,
			State:       state,
			Sync:        sync,
			PeriodBytes: framesPerBuffer * layout.BytesPerFrame,
			Quiet:       opts.Quiet,
		}
		return w.Run(ctx)
	}

	w, closeFn, err := openOutput(opts, format, layout, sampleRate)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && !opts.Quiet {
			log.Printf("lifecycle: closing output: %v", cerr)
		}
	}()

	worker := &ioworker.StdoutWorker{
		Writer: w,
		Ring:   rb,
		Layout: layout,
		State:  state,
		Sync:   sync,
		Quiet:  opts.Quiet,
	}
	return worker.Run(ctx)
}

// openInput opens the stdin tool's source: fd 0, or --file. It does not
// sniff the file for a WAV header; that happens once, earlier, in
// resolveInputFormat, so the detected format can shape the ring and engine
// before any worker exists.
func openInput(opts *config.Options) (io.Reader, func(), error) {
	if opts.File == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(opts.File)
	if err != nil {
		return nil, nil, fmt.Errorf("lifecycle: open input file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// resolveInputFormat opens --file (if any), sniffs it for a RIFF/WAVE
// header, and reports the format the stream will actually carry. A detected
// container's header wins over -b/-e/-L/-B, with a warning when they
// disagree; a non-WAV or stdin-sourced stream keeps the CLI-supplied format
// unchanged. The file is left at the first PCM byte either way: Sniff seeks
// back to the start on a negative match, and openInput reopens it fresh, so
// a short double-open is the price of deciding the format before the ring
// exists.
func resolveInputFormat(opts *config.Options, cliFormat pcmformat.Format) (pcmformat.Format, error) {
	if opts.Mode != config.StdinMode || opts.File == "" {
		return cliFormat, nil
	}

	f, err := os.Open(opts.File)
	if err != nil {
		return pcmformat.Format{}, fmt.Errorf("lifecycle: open input file: %w", err)
	}
	defer f.Close()

	detected, _, _, ok, err := container.Sniff(f)
	if err != nil {
		return pcmformat.Format{}, fmt.Errorf("lifecycle: sniff input file: %w", err)
	}
	if !ok {
		return cliFormat, nil
	}
	if detected != cliFormat {
		log.Printf("lifecycle: %s has a WAV header describing %+v; overriding -b/-e/-L/-B (%+v)",
			opts.File, detected, cliFormat)
	}
	return detected, nil
}

// openOutput opens the stdout tool's sink: fd 1, optionally wrapped in a WAV
// container when --file-format wav is set. WAV output backpatches its RIFF
// size fields at Close, which requires os.Stdout to be a seekable regular
// file (i.e. redirected), not a pipe or terminal.
func openOutput(opts *config.Options, format pcmformat.Format, layout pcmformat.FrameLayout, sampleRate int) (io.Writer, func() error, error) {
	if opts.FileFormat != "wav" {
		return os.Stdout, func() error { return nil }, nil
	}
	w, err := container.NewWAVWriter(os.Stdout, sampleRate, format, layout)
	if err != nil {
		return nil, nil, fmt.Errorf("lifecycle: wav writer: %w", err)
	}
	return &wavFrameWriter{w: w}, w.Close, nil
}

// wavFrameWriter adapts container.WAVWriter's per-frame API to the io.Writer
// the stdout worker writes one whole frame to at a time.
type wavFrameWriter struct{ w *container.WAVWriter }

func (a *wavFrameWriter) Write(p []byte) (int, error) {
	if err := a.w.WriteFrame(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func ioworkerOverrunReporter(ctx context.Context, opts *config.Options, state *runstate.State, rb *ring.Ring) {
	if opts.Mode != config.StdoutMode {
		return
	}
	ioworker.OverrunReporter(ctx, state, rb, overrunReportPeriod, opts.Quiet)
}

func ioworkerUnderrunReporter(ctx context.Context, opts *config.Options, state *runstate.State) {
	if opts.Mode != config.StdinMode {
		return
	}
	ioworker.UnderrunReporter(ctx, state, underrunPollPeriod, opts.Quiet)
}
