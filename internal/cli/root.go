package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/planner"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Set before any subcommand runs.
	RequestID string
	Logger    *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the quarry CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "quarry - safe query plans from request parameters",
		Long: `Translate resource-style query strings and graph-style requests into
validated query plans, and run them as parameterized SQL.

Models are declared in CUE. Every field, operator and aggregate in a request
is checked against the model before any SQL is produced.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.setupLogging(cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewGraphQLCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setupLogging creates the invocation logger. Every line carries the
// invocation's request id.
func (o *RootOptions) setupLogging(w io.Writer) {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.RequestID = uuid.Must(uuid.NewV7()).String()
	o.Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).
		With("request_id", o.RequestID)
}

// logger returns the invocation logger, or a discarding one when a
// subcommand runs without the root command.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
		RequestID: o.RequestID,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// QueryOptions holds the flags shared by commands that plan queries.
type QueryOptions struct {
	*RootOptions
	DB           string
	DefaultLimit int64
	MaxLimit     int64
}

func addLimitFlags(cmd *cobra.Command, opts *QueryOptions) {
	defaults := planner.DefaultOptions()
	cmd.Flags().Int64Var(&opts.DefaultLimit, "default-limit", defaults.DefaultLimit, "page size when a request names none")
	cmd.Flags().Int64Var(&opts.MaxLimit, "max-limit", defaults.MaxLimit, "largest page size a request may ask for")
}

func addDBFlag(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringVar(&opts.DB, "db", "quarry.db", "SQLite path or postgres:// URL")
}

// plannerOptions returns the validated limit options.
func (o *QueryOptions) plannerOptions() (planner.Options, error) {
	opts := planner.Options{DefaultLimit: o.DefaultLimit, MaxLimit: o.MaxLimit}
	if err := opts.Validate(); err != nil {
		return opts, WrapExitError(ExitCommandError, "invalid limits", err)
	}
	return opts, nil
}
