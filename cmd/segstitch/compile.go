package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agleyzer/segstitch/internal/compile"
	"github.com/agleyzer/segstitch/internal/config"
	"github.com/agleyzer/segstitch/internal/mux"
)

type compileOptions struct {
	configPath string
	root       string
	output     string
	ffmpeg     string
	raw        bool
}

func newCompileCmd(a *app) *cobra.Command {
	var opts compileOptions

	cmd := &cobra.Command{
		Use:   "compile [dirs...]",
		Short: "Join the segments of fragment directories into single files",
		Example: `  segstitch compile lecture1 lecture2
  segstitch compile --config batch.yaml
  segstitch compile --raw --output /tmp/out lecture1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, labels, err := opts.resolve(cmd, args)
			if err != nil {
				return err
			}
			return runCompile(cmd, a, c, opts.raw, labels)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML batch file listing directories to compile")
	f.StringVarP(&opts.root, "root", "r", "", "Directory holding the fragment directories (default \".\")")
	f.StringVarP(&opts.output, "output", "o", "", "Directory receiving compiled files (default \"converted\" under root)")
	f.StringVar(&opts.ffmpeg, "ffmpeg", "", "ffmpeg binary name or path (default \"ffmpeg\")")
	f.BoolVar(&opts.raw, "raw", false, "Concatenate segment bytes instead of running ffmpeg")

	return cmd
}

// resolve merges the config file with the flags; positional directories
// replace the config compile list.
func (o *compileOptions) resolve(cmd *cobra.Command, args []string) (*config.Config, []string, error) {
	c := &config.Config{}
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, nil, err
		}
		c = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		c.Root = o.root
	}
	if flags.Changed("output") {
		c.OutputDir = o.output
	}
	if flags.Changed("ffmpeg") {
		c.FFmpeg = o.ffmpeg
	}
	if len(args) > 0 {
		c.Compile = args
	}

	if len(c.Compile) == 0 {
		return nil, nil, usagef("no directories to compile: pass them as arguments or use --config")
	}

	if err := c.Validate(); err != nil {
		return nil, nil, usagef("%v", err)
	}

	return c, c.Compile, nil
}

func runCompile(cmd *cobra.Command, a *app, c *config.Config, raw bool, labels []string) error {
	var muxer mux.Muxer = mux.NewFFmpeg(c.FFmpeg, mux.NewLogger(a.stdout, a.verbose))
	if raw {
		muxer = mux.Bytes{}
	}

	compiler := compile.New(muxer, c.Root, c.OutputDir, a.logger)
	results := compiler.CompileAll(cmd.Context(), labels)

	failed := compile.Failed(results)
	a.logger.Info("compile finished", "directories", len(results), "failed", len(failed))

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d directories failed to compile", len(failed), len(results))
	}
	return nil
}
