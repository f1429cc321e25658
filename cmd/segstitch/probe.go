package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agleyzer/segstitch/internal/manifest"
	"github.com/agleyzer/segstitch/internal/probe"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file|dir>",
		Short: "Report the elementary streams of a segment (a directory probes its first segment)",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := probeTarget(args[0])
			if err != nil {
				return err
			}

			st, err := os.Stat(path)
			if err != nil {
				return err
			}

			info, err := probe.Describe(cmd.Context(), path)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "%s: %s, program %d, pcr pid %d, %d pes packets\n",
				path, humanize.Bytes(uint64(st.Size())), info.ProgramNumber, info.PCRPID, info.PESPackets)
			for _, s := range info.Streams {
				fmt.Fprintf(a.stdout, "  pid %-5d type 0x%02x  %s\n", s.PID, s.Type, s.Name)
			}
			return nil
		},
	}
}

// probeTarget resolves a directory to its first segment in numeric order.
func probeTarget(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return path, nil
	}

	names, err := manifest.Segments(path)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%s: no segments found", path)
	}
	return filepath.Join(path, names[0]), nil
}
