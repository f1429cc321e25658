package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// byteProgress renders the bytes written for one series as a spinner bar.
type byteProgress struct {
	bar *progressbar.ProgressBar
}

func newByteProgress(w io.Writer, label string) *byteProgress {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
	return &byteProgress{bar: bar}
}

func (p *byteProgress) Write(b []byte) (int, error) {
	return p.bar.Write(b)
}

func (p *byteProgress) Close() error {
	return p.bar.Finish()
}

// progressFor returns the per-series progress factory, or nil when progress
// output is disabled.
func (a *app) progressFor() func(label string) io.WriteCloser {
	if a.quiet {
		return nil
	}
	return func(label string) io.WriteCloser {
		return newByteProgress(a.stderr, label)
	}
}
