// Package compile turns fragment directories into one combined file each.
package compile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agleyzer/segstitch/internal/manifest"
	"github.com/agleyzer/segstitch/internal/mux"
	"github.com/agleyzer/segstitch/internal/series"
)

// DefaultOutputDir is where combined files are written, relative to the root.
const DefaultOutputDir = "converted"

// ErrNoSegments is returned for a directory without any segment file.
var ErrNoSegments = errors.New("no segments found")

// Result is the outcome of compiling one directory.
type Result struct {
	// ID identifies this compile job in logs
	ID uuid.UUID

	Label    string
	Manifest string
	Output   string

	// Segments is the number of segments listed in the manifest
	Segments int

	Duration time.Duration

	// Err is nil on success; external tool failures are *mux.Error
	Err error
}

// Compiler writes manifests and hands them to a Muxer.
type Compiler struct {
	muxer     mux.Muxer
	root      string
	outputDir string
	logger    *slog.Logger
}

// New creates a Compiler reading fragment directories under root and writing
// combined files to outputDir. A relative outputDir is resolved against root.
func New(muxer mux.Muxer, root, outputDir string, logger *slog.Logger) *Compiler {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(root, outputDir)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Compiler{
		muxer:     muxer,
		root:      root,
		outputDir: outputDir,
		logger:    logger,
	}
}

// OutputPath returns the combined file written for label.
func (c *Compiler) OutputPath(label string) string {
	return filepath.Join(c.outputDir, label+series.SegmentExt)
}

// CompileAll compiles every label concurrently, one goroutine each, and waits
// for all of them. Results are returned in the order of labels.
func (c *Compiler) CompileAll(ctx context.Context, labels []string) []Result {
	results := make([]Result, len(labels))

	var wg sync.WaitGroup
	for i, label := range labels {
		wg.Add(1)
		go func(i int, label string) {
			defer wg.Done()
			results[i] = c.Compile(ctx, label)
		}(i, label)
	}
	wg.Wait()

	return results
}

// Compile lists the segments of the label's directory in numeric order, writes
// the manifest and runs the muxer to produce the combined output.
func (c *Compiler) Compile(ctx context.Context, label string) Result {
	start := time.Now()
	result := Result{
		ID:     uuid.New(),
		Label:  label,
		Output: c.OutputPath(label),
	}
	logger := c.logger.With("job", result.ID.String(), "series", label)

	finish := func(err error) Result {
		result.Duration = time.Since(start)
		result.Err = err
		if err != nil {
			logger.Error("failed combining", "error", err)
		}
		return result
	}

	if err := series.ValidateLabel(label); err != nil {
		return finish(err)
	}

	dir := filepath.Join(c.root, label)
	names, err := manifest.Segments(dir)
	if err != nil {
		return finish(err)
	}
	if len(names) == 0 {
		return finish(fmt.Errorf("%s: %w", dir, ErrNoSegments))
	}
	result.Segments = len(names)

	manifestPath, err := manifest.Write(dir, names)
	if err != nil {
		return finish(err)
	}
	result.Manifest = manifestPath

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return finish(fmt.Errorf("failed to create output directory: %w", err))
	}

	logger.Info("combining", "segments", len(names), "output", result.Output)
	if err := c.muxer.Concat(ctx, manifestPath, result.Output); err != nil {
		return finish(err)
	}

	result = finish(nil)
	logger.Info("completed combining file", "output", result.Output, "duration", result.Duration)
	return result
}

// Failed returns the results carrying an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
