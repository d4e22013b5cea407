// Command pcmbridge-stdin reads a raw, headerless interleaved PCM byte
// stream from a file (or standard input) and plays it out on N audio
// output ports.
package main

import (
	"fmt"
	"os"

	"pcmbridge/internal/config"
	"pcmbridge/internal/lifecycle"
)

func main() {
	opts, err := config.Parse(config.StdinMode, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if opts.Help {
		os.Exit(0)
	}

	if err := lifecycle.Run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
