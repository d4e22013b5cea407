// Command pcmbridge-stdout captures samples from N audio input ports and
// emits a raw, headerless interleaved PCM byte stream on standard output.
package main

import (
	"fmt"
	"os"

	"pcmbridge/internal/config"
	"pcmbridge/internal/lifecycle"
)

func main() {
	opts, err := config.Parse(config.StdoutMode, os.Args[1:])
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
