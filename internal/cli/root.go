package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // optional YAML config file
	Database string // overrides the configured local database
	Remote   string // overrides the configured remote database
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the outline CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outline",
		Short: "Offline-first outline with sync",
		Long: `Edit a hierarchical outline stored in a local SQLite database and
sync it with a shared remote database.

Every edit is saved locally first. Changes reach the remote on "outline sync"
or, while "outline watch" runs, on every sync interval.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, CodeInput,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the local SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Remote, "remote", "", "path to the remote SQLite database")

	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported once, in the selected output format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	var exitErr *ExitError
	ok := errors.As(err, &exitErr)
	if !ok {
		// flag and argument errors from cobra
		code = ExitCommandError
	}
	if ok && exitErr.Silent {
		return code
	}
	kind := CodeInput
	if ok && exitErr.Kind != "" {
		kind = exitErr.Kind
	}
	out := opts.formatter(stdout, stderr)
	_ = out.Error(kind, err.Error(), nil)
	return code
}

// formatter returns the OutputFormatter for the global flags.
func (o *RootOptions) formatter(stdout, stderr io.Writer) *OutputFormatter {
	format := o.Format
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	return &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr, Verbose: o.Verbose}
}

// output returns the OutputFormatter writing to cmd's streams.
func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return o.formatter(cmd.OutOrStdout(), cmd.ErrOrStderr())
}
