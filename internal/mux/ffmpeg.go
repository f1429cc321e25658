// Package mux joins the segments listed in a manifest into one output file.
package mux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// DefaultBinary is the ffmpeg executable looked up in PATH.
const DefaultBinary = "ffmpeg"

// stderrTail is the number of trailing stderr lines kept for errors.
const stderrTail = 20

// Muxer concatenates the files listed in a manifest into output.
type Muxer interface {
	Concat(ctx context.Context, manifestPath, outputPath string) error
}

// Error reports a failed external tool run.
type Error struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed", e.Tool)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}

	if e.Stderr != "" {
		lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
		msg += ": " + lines[len(lines)-1]
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FFmpeg runs the ffmpeg concat demuxer with stream copy.
type FFmpeg struct {
	// Binary is the ffmpeg executable (DefaultBinary if empty)
	Binary string

	// Logger receives each stderr line of the tool
	Logger hclog.Logger
}

// NewFFmpeg creates an FFmpeg muxer.
func NewFFmpeg(binary string, logger hclog.Logger) *FFmpeg {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &FFmpeg{Binary: binary, Logger: logger}
}

// Args returns the ffmpeg arguments that concatenate manifestPath into outputPath
// without re-encoding.
func (f *FFmpeg) Args(manifestPath, outputPath string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "warning",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		outputPath,
	}
}

// Concat runs ffmpeg and waits for it to exit. A failing run is reported as *Error
// carrying the exit code and the tail of stderr.
func (f *FFmpeg) Concat(ctx context.Context, manifestPath, outputPath string) error {
	binary := f.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	logger := f.Logger
	if logger == nil {
		logger = NewNoOpLogger()
	}

	args := f.Args(manifestPath, outputPath)
	logger.Debug("running", "binary", binary, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, binary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &Error{Tool: binary, Args: args, ExitCode: -1, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &Error{Tool: binary, Args: args, ExitCode: -1, Err: err}
	}

	tail := collect(stderr, logger)

	if err := cmd.Wait(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &Error{Tool: binary, Args: args, ExitCode: code, Stderr: tail, Err: err}
	}

	return nil
}

// collect logs every line from r and returns the last stderrTail lines.
func collect(r io.Reader, logger hclog.Logger) string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		logger.Warn(line)

		lines = append(lines, line)
		if len(lines) > stderrTail {
			lines = lines[1:]
		}
	}
	return strings.Join(lines, "\n")
}
