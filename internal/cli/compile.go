package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
	DDL    string // dialect to render CREATE TABLE statements in
}

// CompilationResult holds the compiled models.
type CompilationResult struct {
	Models []ModelSummary `json:"models"`
}

// ModelSummary describes one compiled model.
type ModelSummary struct {
	Model       string         `json:"model"`
	Table       string         `json:"table"`
	Key         string         `json:"key"`
	Fingerprint string         `json:"fingerprint"`
	Fields      []FieldSummary `json:"fields"`
	DDL         string         `json:"ddl,omitempty"`
}

// FieldSummary describes one model field.
type FieldSummary struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Type   string `json:"type"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <models>",
		Short: "Compile CUE model specs",
		Long: `Compile CUE model specs into field descriptors.

<models> is a .cue file or a directory of them. Each model is printed with
its table, primary key, fields and descriptor fingerprint.

Examples:
  quarry compile ./models
  quarry compile ./models/products.cue --ddl postgres
  quarry compile ./models -o models.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.DDL, "ddl", "", "include CREATE TABLE statements (sqlite|postgres)")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var dialect querysql.Dialect
	if opts.DDL != "" {
		d, err := querysql.ParseDialect(opts.DDL)
		if err != nil {
			return reportError(formatter, WrapExitError(ExitCommandError, "invalid --ddl", err))
		}
		dialect = d
	}

	loaded, err := LoadModels(path)
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "compilation failed", err))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, path)
	opts.logger().Debug("models compiled", "path", path, "models", len(loaded.Models))

	result := &CompilationResult{Models: make([]ModelSummary, 0, len(loaded.Models))}
	for _, d := range loaded.Models {
		summary := summarizeModel(d)
		if opts.DDL != "" {
			summary.DDL = store.CreateTableSQL(d, dialect)
		}
		result.Models = append(result.Models, summary)
	}

	if opts.Output != "" {
		if err := writeJSONFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d model(s) from %d file(s)\n", len(result.Models), loaded.FileCount)
	for _, m := range result.Models {
		fmt.Fprintf(w, "\n%s (table %s, key %s)\n", m.Model, m.Table, m.Key)
		for _, f := range m.Fields {
			if f.Column != f.Name {
				fmt.Fprintf(w, "  %-16s %-9s column %s\n", f.Name, f.Type, f.Column)
				continue
			}
			fmt.Fprintf(w, "  %-16s %s\n", f.Name, f.Type)
		}
		if m.DDL != "" {
			fmt.Fprintf(w, "\n%s;\n", m.DDL)
		}
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote models to %s\n", opts.Output)
	}
	return nil
}

func summarizeModel(d *schema.Descriptor) ModelSummary {
	m := ModelSummary{
		Model:       d.Model(),
		Table:       d.Table(),
		Key:         d.PrimaryKey().Name,
		Fingerprint: d.Fingerprint(),
	}
	for _, f := range d.Fields() {
		m.Fields = append(m.Fields, FieldSummary{Name: f.Name, Column: f.Column, Type: string(f.Type)})
	}
	return m
}

func writeJSONFile(v any, filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
