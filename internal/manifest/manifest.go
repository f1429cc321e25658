// Package manifest lists the segments of a fragment directory in numeric order
// and writes them as an ffmpeg concat demuxer list.
package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"

	"github.com/agleyzer/segstitch/internal/series"
)

// FileName is the manifest written inside each fragment directory.
const FileName = "compiled.txt"

// Segments returns the segment file names in dir ordered by their numeric stem,
// so "2.ts" sorts before "10.ts". Other files are ignored.
func Segments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := series.ParseSegmentName(e.Name()); ok {
			names = append(names, e.Name())
		}
	}

	natsort.Sort(names)
	return names, nil
}

// Write replaces the manifest in dir with one "file '<name>'" line per name.
// It returns the manifest path.
func Write(dir string, names []string) (string, error) {
	var buf bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&buf, "file '%s'\n", quote(name))
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}

// Read parses a manifest written by Write and returns the listed names.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		rest, ok := strings.CutPrefix(text, "file ")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected file directive", path, line)
		}

		name, err := unquote(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return names, nil
}

// quote escapes single quotes the way the concat demuxer expects inside a
// single quoted string.
func quote(name string) string {
	return strings.ReplaceAll(name, `'`, `'\''`)
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", fmt.Errorf("file name %s is not single quoted", s)
	}
	return strings.ReplaceAll(s[1:len(s)-1], `'\''`, `'`), nil
}
