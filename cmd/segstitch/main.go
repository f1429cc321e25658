// The segstitch command downloads numbered media segment series and joins them
// into single files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// usageError marks a command line that could not be understood.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// app carries the global flags and output streams shared by every subcommand.
type app struct {
	verbose bool
	quiet   bool

	stdout io.Writer
	stderr io.Writer

	logger *slog.Logger
}

func (a *app) setupLogger() {
	// Setup logger
	logLevel := slog.LevelInfo
	if a.verbose {
		logLevel = slog.LevelDebug
	}

	a.logger = slog.New(slog.NewTextHandler(a.stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "segstitch",
		Short:         "Download numbered segment series and join them into single files",
		Version:       version,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.setupLogger()
			a.logger.Debug("segstitch starting", "version", version, "command", cmd.Name())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "Enable verbose logging")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Hide download progress bars")

	root.AddCommand(
		newFetchCmd(a),
		newCompileCmd(a),
		newJoinCmd(a),
		newProbeCmd(a),
	)

	return root
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	a.setupLogger()

	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		fmt.Fprintf(stderr, "Run 'segstitch --help' for usage.\n")
		return exitUsage
	}

	a.logger.Error("application error", "error", err)
	return exitError
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
