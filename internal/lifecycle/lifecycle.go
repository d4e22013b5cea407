// Package lifecycle drives one tool invocation end to end: validate, open
// the audio device, wire the ring/engine/worker, install signal handlers,
// run until shutdown, and report — spec.md §4.5, adapted from the
// teacher's cmd/app.go component-wiring shape and cmd/main.go's
// signal.Notify shutdown race.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pcmbridge/internal/audiodevice"
	"pcmbridge/internal/config"
	"pcmbridge/internal/engine"
	"pcmbridge/internal/pcmformat"
	"pcmbridge/internal/ring"
	"pcmbridge/internal/runstate"
	"pcmbridge/internal/telemetry"
)

const (
	framesPerBuffer = 1024 // the "server period" this binding asks PortAudio for
)

// Run parses the already-validated Options into a running tool and blocks
// until shutdown (SIGHUP, SIGINT, EOF, or duration expiry), then returns.
func Run(opts *config.Options) error {
	if opts.Help {
		return nil
	}
	if len(opts.PortHints) == 0 {
		return fmt.Errorf("lifecycle: at least one port/device hint is required")
	}

	format, err := opts.Format()
	if err != nil {
		return err
	}
	format, err = resolveInputFormat(opts, format)
	if err != nil {
		return err
	}
	channels := len(opts.PortHints)
	layout := pcmformat.NewFrameLayout(channels, format)
	prebufferPercent := prebufferForMode(opts)

	if err := config.ValidateRingSize(opts.Bufsize, framesPerBuffer, prebufferPercent); err != nil {
		return err
	}

	direction := audiodevice.Capture
	if opts.Mode == config.StdinMode {
		direction = audiodevice.Playback
	}
	dev, err := audiodevice.Open(direction, channels, opts.PortHints, opts.Debug)
	if err != nil {
		return fmt.Errorf("lifecycle: open device: %w", err)
	}

	sampleRate := int(dev.SampleRate())
	durationFrames := int64(opts.Duration * float64(sampleRate))

	rb := ring.New(layout.BytesPerFrame * opts.Bufsize)
	state := runstate.New(float32(prebufferPercent), durationFrames)
	sync := engine.NewSync()
	eng := engine.New(rb, format, layout, state, sync)

	if !opts.Quiet {
		log.Printf("pcmbridge: device=%q channels=%d bitdepth=%d encoding=%s rate=%dHz bufsize=%d",
			dev.Name(), channels, opts.BitDepth, opts.Encoding, sampleRate, opts.Bufsize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.MonitorAddr != "" {
		bc := telemetry.New(state, rb, 500*time.Millisecond)
		if err := bc.Start(ctx, opts.MonitorAddr); err != nil {
			return fmt.Errorf("lifecycle: telemetry: %w", err)
		}
	}

	if err := wireStream(dev, eng, opts.Mode); err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		return fmt.Errorf("lifecycle: start stream: %w", err)
	}
	// Pre-fault every ring page now that the real-time stream is active, so
	// a first-touch page fault never lands inside the RT callback.
	rb.Touch()

	state.SetCanProcess(true)

	workerErrCh := make(chan error, 1)
	go ioworkerOverrunReporter(ctx, opts, state, rb)
	go ioworkerUnderrunReporter(ctx, opts, state)
	go func() {
		workerErrCh <- runWorker(ctx, opts, format, layout, sampleRate, rb, state, sync)
	}()

	state.SetCanCapture(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT)

	var workerErr error
	select {
	case sig := <-sigCh:
		if !opts.Quiet {
			log.Printf("lifecycle: received %v, shutting down", sig)
		}
		state.Stop()
		sync.WakeAll()
		cancel()
		workerErr = <-workerErrCh
	case workerErr = <-workerErrCh:
		state.Stop()
		sync.WakeAll()
		cancel()
	}

	stopErr := dev.Stop()
	if stopErr != nil {
		stopErr = dev.Abort()
	}
	closeErr := dev.Close()

	if !opts.Quiet {
		log.Printf("underruns=%d overruns=%d", state.Underruns(), state.Overruns())
	}

	if workerErr != nil {
		return workerErr
	}
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}

func prebufferForMode(opts *config.Options) float64 {
	if opts.Mode == config.StdinMode {
		return opts.Prebuffer
	}
	return 0
}
