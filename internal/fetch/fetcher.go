// Package fetch downloads numbered segment series into fragment directories.
//
// A series is probed index by index starting at 1. The first response with a
// failing status marks the end of the series; its length is discovered, not
// known in advance.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/agleyzer/segstitch/internal/parser"
	"github.com/agleyzer/segstitch/internal/series"
)

// DefaultChunkSize is the number of bytes read from a response body at a time.
const DefaultChunkSize = 1024

const partSuffix = ".part"

// Outcome is the result of fetching one index of a series.
type Outcome int

const (
	// Success means the segment was downloaded and written
	Success Outcome = iota + 1
	// NotOk means the server answered with a failing status; the series is exhausted
	NotOk
	// AlreadyPresent means the segment file already existed and was left alone
	AlreadyPresent
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NotOk:
		return "not-ok"
	case AlreadyPresent:
		return "already-present"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TransportError is a connection level failure while fetching a segment.
// It is fatal for the run: later series in a batch are not attempted.
type TransportError struct {
	Label string
	Index int
	URL   string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("series %s: segment %d (%s): %v", e.Label, e.Index, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Report summarizes one fetch run over a series.
type Report struct {
	Label string
	Dir   string

	// Written lists the indexes downloaded during this run
	Written []int

	// Skipped lists the indexes already present on disk
	Skipped []int

	// Bytes is the number of payload bytes written during this run
	Bytes int64

	// Exhausted is set when the run ended on a failing response
	Exhausted bool

	// ExhaustedAt is the index that answered with a failing status
	ExhaustedAt int

	// Status is the HTTP status of the failing response
	Status int

	// Last is the last index processed
	Last int
}

// Options tune a Fetcher.
type Options struct {
	// ChunkSize is the read size for response bodies (DefaultChunkSize if 0)
	ChunkSize int

	// UserAgent is sent with every request when set
	UserAgent string

	// Progress optionally returns a sink receiving every payload byte written
	// for the series with the given label. It is closed when the series ends.
	Progress func(label string) io.WriteCloser
}

// Fetcher downloads series into directories under a root.
type Fetcher struct {
	client *http.Client
	root   string
	opts   Options
	logger *slog.Logger
}

// New creates a Fetcher storing fragment directories under root.
func New(client *http.Client, root string, opts Options, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	return &Fetcher{
		client: client,
		root:   root,
		opts:   opts,
		logger: logger,
	}
}

// FetchAll fetches every series in order, one at a time.
// A transport failure stops the batch and is returned with the reports of the
// series processed so far, including the partial report of the failing one.
func (f *Fetcher) FetchAll(ctx context.Context, all []series.Series) ([]Report, error) {
	reports := make([]Report, 0, len(all))
	for _, s := range all {
		report, err := f.Fetch(ctx, s)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// Fetch downloads the segments of s until a failing response or its stop index.
// Segments already on disk are not downloaded again.
func (f *Fetcher) Fetch(ctx context.Context, s series.Series) (Report, error) {
	dir := s.Dir(f.root)
	report := Report{Label: s.Label, Dir: dir}

	if err := series.ValidateLabel(s.Label); err != nil {
		return report, err
	}

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		f.logger.Info("folder not found, creating", "dir", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create series directory: %w", err)
	}

	stop, err := f.stopIndex(ctx, s)
	if err != nil {
		return report, err
	}

	logger := f.logger.With("series", s.Label)
	logger.Info("starting download", "dir", dir, "stop", stop)

	var progress io.WriteCloser
	if f.opts.Progress != nil {
		progress = f.opts.Progress(s.Label)
		defer progress.Close()
	}

	for index := 1; ; index++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, status, n, err := f.fetchSegment(ctx, s, dir, index, progress)
		if err != nil {
			return report, err
		}
		report.Last = index

		logger.Debug("segment", "index", index, "status", status, "outcome", outcome)

		switch outcome {
		case Success:
			report.Written = append(report.Written, index)
			report.Bytes += n
		case AlreadyPresent:
			report.Skipped = append(report.Skipped, index)
		case NotOk:
			report.Exhausted = true
			report.ExhaustedAt = index
			report.Status = status
			logger.Info("found broken link", "index", index, "status", status)
		}

		if outcome == NotOk {
			break
		}
		if stop > 0 && index == stop {
			logger.Info("reached stop index", "index", index)
			break
		}
	}

	logger.Info("completed download",
		"written", len(report.Written),
		"skipped", len(report.Skipped),
		"bytes", humanize.Bytes(uint64(report.Bytes)),
	)

	return report, nil
}

// stopIndex returns the explicit end index of s, or one derived from its playlist.
func (f *Fetcher) stopIndex(ctx context.Context, s series.Series) (int, error) {
	if s.StopIndex > 0 {
		return s.StopIndex, nil
	}
	if s.StopIndex < 0 {
		return 0, fmt.Errorf("series %s: stop index must not be negative", s.Label)
	}
	if s.Playlist == "" {
		return 0, nil
	}

	count, err := parser.SegmentCount(ctx, f.client, s.Playlist)
	if err != nil {
		return 0, fmt.Errorf("series %s: %w", s.Label, err)
	}
	f.logger.Info("series bounded by playlist", "series", s.Label, "playlist", s.Playlist, "segments", count)
	return count, nil
}

// fetchSegment requests one index and stores its body unless the file exists.
func (f *Fetcher) fetchSegment(ctx context.Context, s series.Series, dir string, index int, progress io.Writer) (Outcome, int, int64, error) {
	segmentURL := s.URL(index)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segmentURL, nil)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to create request for segment %d: %w", index, err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, 0, 0, ctxErr
		}
		return 0, 0, 0, &TransportError{Label: s.Label, Index: index, URL: segmentURL, Err: err}
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return NotOk, resp.StatusCode, 0, nil
	}

	path := filepath.Join(dir, series.SegmentName(index))
	if fileExists(path) {
		return AlreadyPresent, resp.StatusCode, 0, nil
	}

	n, err := f.writeBody(resp.Body, path, progress)
	if err != nil {
		var readErr *bodyReadError
		if errors.As(err, &readErr) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, 0, 0, ctxErr
			}
			return 0, 0, 0, &TransportError{Label: s.Label, Index: index, URL: segmentURL, Err: readErr.err}
		}
		return 0, 0, 0, err
	}

	return Success, resp.StatusCode, n, nil
}

type bodyReadError struct {
	err error
}

func (e *bodyReadError) Error() string {
	return fmt.Sprintf("read body: %v", e.err)
}

// writeBody streams body into path in fixed size chunks. Empty reads carry no
// payload and are never written. The file only appears under its final name
// once the whole body has been stored.
func (f *Fetcher) writeBody(body io.Reader, path string, progress io.Writer) (int64, error) {
	tmp := path + partSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("error creating file: %w", err)
	}

	fail := func(err error) (int64, error) {
		out.Close()
		os.Remove(tmp)
		return 0, err
	}

	var written int64
	buf := make([]byte, f.opts.ChunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fail(fmt.Errorf("error writing %s: %w", tmp, err))
			}
			if progress != nil {
				if _, err := progress.Write(buf[:n]); err != nil {
					// Progress output never fails a download; stop feeding it for this segment.
					f.logger.Debug("progress output failed", "path", path, "error", err)
					progress = nil
				}
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(&bodyReadError{err: rerr})
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("error closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("error renaming %s: %w", tmp, err)
	}

	return written, nil
}

// ok mirrors the usual client notion of a usable response: anything below 400.
// Redirects have already been followed by the client.
func ok(status int) bool {
	return status < http.StatusBadRequest
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
