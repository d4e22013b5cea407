// Package config parses and validates the command-line surface shared by
// both tools, using the same pflag-based idiom the rest of the example
// corpus reaches for when it needs a real CLI (spec.md §6).
package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/pflag"

	"pcmbridge/internal/pcmformat"
)

// Mode selects which tool is parsing its arguments: the stdin tool accepts
// -f/--file and -p/--prebuffer, the stdout tool does not.
type Mode int

const (
	StdinMode Mode = iota
	StdoutMode
)

// Options holds one tool invocation's fully parsed and validated CLI state.
type Options struct {
	Quiet   bool
	Debug   bool
	Help    bool
	BitDepth int
	Duration float64 // seconds; 0 = unlimited
	Encoding string  // "signed-integer" | "unsigned-integer" | "floating-point"
	BigEndian bool
	Bufsize int // ring size in samples

	File      string  // stdin mode only; "" means fd 0
	Prebuffer float64 // stdin mode only; percent

	// PortHints are the positional arguments: port-connection targets in
	// spec.md's terms, device-name hints in this PortAudio binding.
	PortHints []string

	// MonitorAddr, when non-empty, starts the optional telemetry broadcaster.
	MonitorAddr string
	// FileFormat optionally names a container ("wav") layered over raw PCM.
	FileFormat string

	Mode Mode
}

const (
	defaultBitDepth  = 16
	defaultEncoding  = "signed-integer"
	defaultBufsize   = 65536
	defaultPrebuffer = 25.0
)

var encodingNames = []string{"signed-integer", "unsigned-integer", "floating-point"}

// Parse parses args (excluding the program name, i.e. os.Args[1:]) for the
// given tool mode.
func Parse(mode Mode, args []string) (*Options, error) {
	fs := pflag.NewFlagSet("pcmbridge", pflag.ContinueOnError)
	opts := &Options{Mode: mode}

	fs.BoolVarP(&opts.Help, "help", "h", false, "show this help message")
	fs.BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress banner and underrun/overrun logging")
	fs.BoolVar(&opts.Debug, "debug", false, "enable verbose diagnostic logging")
	fs.IntVarP(&opts.BitDepth, "bitdepth", "b", defaultBitDepth, "sample bit depth: 8, 16, 24, or 32")
	fs.Float64VarP(&opts.Duration, "duration", "d", 0, "stop after this many seconds (0 = unlimited)")
	fs.StringVarP(&opts.Encoding, "encoding", "e", defaultEncoding, "signed-integer | unsigned-integer | floating-point (any unambiguous prefix)")
	fs.BoolP("little-endian", "L", true, "use little-endian byte order (default)")
	fs.BoolVarP(&opts.BigEndian, "big-endian", "B", false, "use big-endian byte order")
	fs.IntVarP(&opts.Bufsize, "bufsize", "S", defaultBufsize, "ring buffer size, in samples")
	fs.StringVar(&opts.MonitorAddr, "monitor-addr", "", "optional host:port to serve a WebSocket telemetry feed on")
	fs.StringVar(&opts.FileFormat, "file-format", "", "optional container format for the stdout tool's output (\"wav\"); raw PCM if unset")

	if mode == StdinMode {
		fs.StringVarP(&opts.File, "file", "f", "", "read from this path instead of stdin")
		fs.Float64VarP(&opts.Prebuffer, "prebuffer", "p", defaultPrebuffer, "pre-buffer gate, percent of ring capacity (0-90)")
	}

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [OPTIONS] port1 [port2 ...]\n", progName(mode))
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.Help {
		fs.Usage()
	}
	opts.PortHints = fs.Args()

	if err := opts.normalizeEncoding(); err != nil {
		return nil, err
	}
	opts.clampPrebuffer()

	return opts, nil
}

func progName(mode Mode) string {
	if mode == StdinMode {
		return "pcmbridge-stdin"
	}
	return "pcmbridge-stdout"
}

// normalizeEncoding resolves any unambiguous prefix of the three encoding
// names to its full form, per spec.md §6.
func (o *Options) normalizeEncoding() error {
	lower := strings.ToLower(o.Encoding)
	var match string
	for _, name := range encodingNames {
		if strings.HasPrefix(name, lower) {
			if match != "" {
				return fmt.Errorf("config: encoding %q is ambiguous between %q and %q", o.Encoding, match, name)
			}
			match = name
		}
	}
	if match == "" {
		return fmt.Errorf("config: unrecognized encoding %q", o.Encoding)
	}
	o.Encoding = match
	return nil
}

// clampPrebuffer applies spec.md §6's "values <1 round to 0; values >90
// clamp to 90" rule.
func (o *Options) clampPrebuffer() {
	if o.Mode != StdinMode {
		return
	}
	if o.Prebuffer < 1 {
		o.Prebuffer = 0
	} else if o.Prebuffer > 90 {
		o.Prebuffer = 90
	}
}

// Format builds the pcmformat.Format this Options describes.
func (o *Options) Format() (pcmformat.Format, error) {
	kind := pcmformat.Signed
	switch o.Encoding {
	case "signed-integer":
		kind = pcmformat.Signed
	case "unsigned-integer":
		kind = pcmformat.Unsigned
	case "floating-point":
		kind = pcmformat.Float
	}

	endian := pcmformat.LittleEndian
	if o.BigEndian {
		endian = pcmformat.BigEndian
	}

	f := pcmformat.Format{Width: o.BitDepth, Kind: kind, Endian: endian}
	if err := f.Validate(); err != nil {
		return pcmformat.Format{}, err
	}
	return f, nil
}

// ValidateRingSize checks spec.md §4.5's two ring-size invariants against a
// given server period length, in frames.
func ValidateRingSize(rbSizeSamples, period int, prebufferPercent float64) error {
	if rbSizeSamples < 16 {
		return fmt.Errorf("config: bufsize %d is below the minimum of 16 samples", rbSizeSamples)
	}
	if rbSizeSamples/2 < period {
		return fmt.Errorf("config: bufsize %d is too small for a period of %d frames (need bufsize/2 >= period)", rbSizeSamples, period)
	}
	gate := int(math.Ceil(float64(rbSizeSamples) * prebufferPercent / 100.0))
	if rbSizeSamples-gate < period {
		return fmt.Errorf("config: prebuffer %.1f%% leaves no headroom for a period of %d frames", prebufferPercent, period)
	}
	return nil
}
