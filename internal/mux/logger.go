package mux

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// NewNoOpLogger creates an hclog.Logger that drops all tool output.
func NewNoOpLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "ffmpeg",
		Level:  hclog.Off,
		Output: io.Discard,
	})
}

// NewLogger creates the hclog.Logger that receives ffmpeg diagnostics.
// Tool output is logged at warn level; verbose also shows the invocations.
func NewLogger(w io.Writer, verbose bool) hclog.Logger {
	level := hclog.Warn
	if verbose {
		level = hclog.Debug
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "ffmpeg",
		Level:  level,
		Output: w,
	})
}
