// Package series defines the numbered segment series fetched by segstitch.
package series

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SegmentExt is the extension of every fetched segment file.
const SegmentExt = ".ts"

// Series is one numbered sequence of remote segments sharing a URL template.
// The URL of segment n is Prefix + n + Suffix, with n starting at 1.
type Series struct {
	// Label names the series and its fragment directory
	Label string

	// Prefix is the part of the URL before the index
	Prefix string

	// Suffix is the part of the URL after the index
	Suffix string

	// StopIndex is an optional last index to fetch (0 means run until failure)
	StopIndex int

	// Playlist is an optional playlist URL whose segment count bounds the series
	// Ignored when StopIndex is set
	Playlist string
}

// URL returns the resource URL of the segment at index.
func (s Series) URL(index int) string {
	return s.Prefix + strconv.Itoa(index) + s.Suffix
}

// Dir returns the fragment directory of the series under root.
func (s Series) Dir(root string) string {
	return filepath.Join(root, s.Label)
}

// String implements fmt.Stringer.
func (s Series) String() string {
	return fmt.Sprintf("%s (%s{n}%s)", s.Label, s.Prefix, s.Suffix)
}

// SegmentName returns the file name of the segment at index.
func SegmentName(index int) string {
	return strconv.Itoa(index) + SegmentExt
}

// ParseSegmentName returns the index encoded in a segment file name.
// Only the names SegmentName produces are accepted: "{n}.ts" with n a positive
// decimal integer written without leading zeros.
func ParseSegmentName(name string) (int, bool) {
	stem, ok := strings.CutSuffix(name, SegmentExt)
	if !ok || stem == "" || stem[0] == '0' {
		return 0, false
	}
	for _, r := range stem {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(stem)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ValidateLabel reports whether label can name a fragment directory.
func ValidateLabel(label string) error {
	switch {
	case label == "":
		return fmt.Errorf("label is required")
	case label == "." || label == "..":
		return fmt.Errorf("invalid label %q", label)
	case strings.ContainsAny(label, `/\`):
		return fmt.Errorf("label %q must not contain path separators", label)
	}
	return nil
}
