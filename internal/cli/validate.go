package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Models []string                   `json:"models"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <models>",
		Short: "Check models for query conflicts",
		Long: `Compile CUE model specs and check rules that span fields and models:
reserved parameter names, fields that hide operator suffixes, shared tables
and duplicate models.

Exit codes:
  0 - Models are valid
  1 - Validation errors found
  2 - Models could not be loaded`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadModels(path)
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "loading models", err))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, path)

	result := ValidationResult{Valid: true}
	for _, d := range loaded.Models {
		result.Models = append(result.Models, d.Model())
	}
	result.Errors = compiler.Validate(loaded.Models)
	result.Valid = len(result.Errors) == 0

	for _, verr := range result.Errors {
		opts.logger().Debug("validation error", "code", verr.Code, "model", verr.Model, "field", verr.Field)
	}

	if formatter.Format == "json" {
		if result.Valid {
			if err := formatter.Success(result); err != nil {
				return err
			}
		} else {
			first := result.Errors[0]
			if err := formatter.encode(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: first.Code, Message: first.Error()},
			}); err != nil {
				return err
			}
		}
	} else {
		w := formatter.Writer
		if result.Valid {
			fmt.Fprintf(w, "✓ %d model(s) valid\n", len(result.Models))
		} else {
			fmt.Fprintf(w, "✗ Validation failed with %d error(s)\n\n", len(result.Errors))
			for _, verr := range result.Errors {
				fmt.Fprintf(w, "  %s\n", verr.Error())
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}
