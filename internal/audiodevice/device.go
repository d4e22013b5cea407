// Package audiodevice binds the engine to a real-time audio server through
// PortAudio. It is the concrete stand-in for spec.md's abstract "audio
// server client library" collaborator (see SPEC_FULL.md's "Audio backend
// substitution" section): PortAudio's non-interleaved [][]float32 callback
// buffers map directly onto spec.md's per-channel Ports[1..channels].
package audiodevice

import (
	"fmt"
	"log"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Direction distinguishes which side of a PortAudio device a tool opens.
type Direction int

const (
	// Playback opens an output stream (the stdin tool: ring -> speakers).
	Playback Direction = iota
	// Capture opens an input stream (the stdout tool: microphone -> ring).
	Capture
)

// Device wraps the PortAudio lifecycle: Initialize, pick a device, open one
// stream in one direction, Start/Stop/Abort/Close.
type Device struct {
	direction Direction
	channels  int
	selected  *portaudio.DeviceInfo
	stream    *portaudio.Stream
	debug     bool
}

// Open initializes PortAudio, selects a device matching portHints (in
// priority order, falling back to the system default), and returns a Device
// ready to have a stream opened on it. portHints plays the role spec.md's
// port-name connection targets play for a graph-based audio server: since
// PortAudio has no connection graph, the hints instead narrow which
// physical device this process binds to.
func Open(direction Direction, channels int, portHints []string, debug bool) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audiodevice: portaudio init: %w", err)
	}

	dev, err := selectDevice(direction, channels, portHints, debug)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	return &Device{direction: direction, channels: channels, selected: dev, debug: debug}, nil
}

// selectDevice mirrors the teacher's findAudioDevice: score every candidate
// device by substring match against the caller's hints, excluding
// monitor/loopback/rate-conversion devices, and fall back to the system
// default when no candidate scores zero or above. Each hint that matches no
// candidate is logged as a warning.
func selectDevice(direction Direction, channels int, hints []string, debug bool) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audiodevice: list devices: %w", err)
	}

	var best *portaudio.DeviceInfo
	bestPriority := -1
	matched := make(map[string]bool)

	for _, d := range devices {
		chans := d.MaxInputChannels
		if direction == Playback {
			chans = d.MaxOutputChannels
		}
		if chans == 0 {
			continue
		}

		name := strings.ToLower(d.Name)
		if strings.Contains(name, "monitor") || strings.Contains(name, "loopback") ||
			strings.Contains(name, "samplerate") || strings.Contains(name, "lavrate") {
			continue
		}

		priority := 0
		for _, hint := range hints {
			if hint == "" {
				continue
			}
			if strings.Contains(name, strings.ToLower(hint)) {
				priority += 100
				matched[hint] = true
			}
		}
		if strings.Contains(name, "pulse") {
			priority += 50
		} else if strings.Contains(name, "pipewire") {
			priority += 45
		} else if name == "default" {
			priority += 30
		}
		if chans < channels {
			priority -= 20
		}

		if debug {
			log.Printf("audiodevice: candidate %q priority=%d", d.Name, priority)
		}
		if priority > bestPriority {
			bestPriority = priority
			best = d
		}
	}

	for _, hint := range hints {
		if hint != "" && !matched[hint] {
			log.Printf("audiodevice: warning: no device matches %q", hint)
		}
	}

	if best == nil {
		var defErr error
		if direction == Playback {
			best, defErr = portaudio.DefaultOutputDevice()
		} else {
			best, defErr = portaudio.DefaultInputDevice()
		}
		if defErr != nil {
			return nil, fmt.Errorf("audiodevice: no matching or default device: %w", defErr)
		}
		log.Printf("audiodevice: no hinted device matched, using default %q", best.Name)
	}

	return best, nil
}

// Name is the selected device's display name, used for the startup banner.
func (d *Device) Name() string {
	return d.selected.Name
}

// SampleRate is the selected device's default sample rate.
func (d *Device) SampleRate() float64 {
	return d.selected.DefaultSampleRate
}

// OpenStream opens a non-interleaved stream calling cb once per period with
// channels slices of period-length float32 samples — out for Playback, in
// for Capture.
func (d *Device) OpenStream(framesPerBuffer int, cb any) error {
	var params portaudio.StreamParameters
	if d.direction == Playback {
		params = portaudio.StreamParameters{
			Output: portaudio.StreamDeviceParameters{
				Device:   d.selected,
				Channels: d.channels,
				Latency:  d.selected.DefaultLowOutputLatency,
			},
			SampleRate:      d.selected.DefaultSampleRate,
			FramesPerBuffer: framesPerBuffer,
		}
	} else {
		params = portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   d.selected,
				Channels: d.channels,
				Latency:  d.selected.DefaultLowInputLatency,
			},
			SampleRate:      d.selected.DefaultSampleRate,
			FramesPerBuffer: framesPerBuffer,
		}
	}

	stream, err := portaudio.OpenStream(params, cb)
	if err != nil {
		return fmt.Errorf("audiodevice: open stream: %w", err)
	}
	d.stream = stream
	return nil
}

// Start activates the stream.
func (d *Device) Start() error {
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("audiodevice: start stream: %w", err)
	}
	return nil
}

// Stop drains and stops the stream cleanly, so any buffered audio still
// plays out. The lifecycle calls it on every shutdown.
func (d *Device) Stop() error {
	if d.stream == nil {
		return nil
	}
	return d.stream.Stop()
}

// Abort stops the stream immediately, discarding anything still buffered.
// The lifecycle calls it only when Stop has returned an error.
func (d *Device) Abort() error {
	if d.stream == nil {
		return nil
	}
	return d.stream.Abort()
}

// Close releases the stream and terminates PortAudio. Safe to call once,
// after Stop or Abort.
func (d *Device) Close() error {
	var streamErr error
	if d.stream != nil {
		streamErr = d.stream.Close()
		d.stream = nil
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("audiodevice: terminate: %w", err)
	}
	return streamErr
}
