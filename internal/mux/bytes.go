package mux

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agleyzer/segstitch/internal/manifest"
)

// Bytes concatenates the listed files byte for byte without any external tool.
// MPEG-TS segments of one stream can be joined this way.
type Bytes struct{}

// Concat joins the files named in the manifest, resolved relative to the
// manifest's directory, into outputPath.
func (Bytes) Concat(ctx context.Context, manifestPath, outputPath string) error {
	names, err := manifest.Read(manifestPath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(manifestPath)
	paths := make([]string, len(names))
	for i, name := range names {
		if filepath.IsAbs(name) {
			paths[i] = name
		} else {
			paths[i] = filepath.Join(dir, name)
		}
	}

	return ConcatFiles(ctx, paths, outputPath)
}

// ConcatFiles writes the contents of paths, in order, to outputPath.
// The output replaces any previous file only once every input was copied.
func ConcatFiles(ctx context.Context, paths []string, outputPath string) error {
	tmp := outputPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	fail := func(err error) error {
		out.Close()
		os.Remove(tmp)
		return err
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := appendFile(out, path); err != nil {
			return fail(err)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

func appendFile(out io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("can't open %s: %w", path, err)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return nil
}
