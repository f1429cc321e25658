// Package audio joins numbered audio parts such as "3-Intro01.mp3" and
// "3-Intro02.mp3" into one file per number ("3-intro.mp3").
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/facette/natsort"

	"github.com/agleyzer/segstitch/internal/mux"
)

// Ext is the extension of audio parts and joined outputs.
const Ext = ".mp3"

// trailingDigits is how many digits at the end of a title are treated as a part number.
const trailingDigits = 3

var partPattern = regexp.MustCompile(`^(\d+)-(.+)\.(?i:mp3)$`)

// Group is the set of parts sharing one leading number.
type Group struct {
	Number int

	// Members are the part file names in join order
	Members []string

	// Output is the joined file name
	Output string
}

// Groups scans dir for numbered parts and groups them by their exact leading number.
// Files that already are a group's output are not treated as members.
func Groups(dir string) ([]Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	byNumber := make(map[int][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := partPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		byNumber[n] = append(byNumber[n], e.Name())
	}

	numbers := make([]int, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var groups []Group
	for _, n := range numbers {
		names := byNumber[n]
		natsort.Sort(names)

		output := OutputName(names[0])
		for _, name := range names {
			if derived := OutputName(name); derived != name {
				output = derived
				break
			}
		}

		members := make([]string, 0, len(names))
		for _, name := range names {
			if name != output {
				members = append(members, name)
			}
		}
		if len(members) == 0 {
			continue
		}

		groups = append(groups, Group{Number: n, Members: members, Output: output})
	}

	return groups, nil
}

// OutputName derives the joined file name from a part name: the title after the
// leading number is lowercased and stripped of up to three trailing digits.
func OutputName(part string) string {
	m := partPattern.FindStringSubmatch(part)
	if m == nil {
		return part
	}

	title := strings.SplitN(m[2], "-", 2)[0]
	title = strings.SplitN(title, ".", 2)[0]
	title = strings.ToLower(title)
	for i := 0; i < trailingDigits && title != ""; i++ {
		last := title[len(title)-1]
		if last < '0' || last > '9' {
			break
		}
		title = title[:len(title)-1]
	}

	if title == "" {
		return m[1] + Ext
	}
	return m[1] + "-" + title + Ext
}

// Join concatenates the group's members into its output inside dir, replacing
// any previous output.
func Join(ctx context.Context, dir string, g Group) error {
	paths := make([]string, len(g.Members))
	for i, name := range g.Members {
		paths[i] = filepath.Join(dir, name)
	}
	return mux.ConcatFiles(ctx, paths, filepath.Join(dir, g.Output))
}

// JoinAll joins every group found in dir, one after another, and returns the
// output paths written.
func JoinAll(ctx context.Context, dir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	groups, err := Groups(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("combining audio files", "dir", dir, "groups", len(groups))

	var outputs []string
	for _, g := range groups {
		if err := Join(ctx, dir, g); err != nil {
			return outputs, fmt.Errorf("group %d: %w", g.Number, err)
		}
		out := filepath.Join(dir, g.Output)
		logger.Info("joined", "number", g.Number, "parts", len(g.Members), "output", out)
		outputs = append(outputs, out)
	}

	return outputs, nil
}
