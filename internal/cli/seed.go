package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/harness"
	"github.com/roach88/quarry/internal/ir"
)

// SeedResult reports the inserted rows.
type SeedResult struct {
	Model    string `json:"model"`
	Inserted int    `json:"inserted"`
	Keys     []any  `json:"keys"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <models> <model> <rows.yaml>",
		Short: "Insert rows from a YAML file",
		Long: `Insert the rows listed in a YAML file into the database named by --db.

The file is a list of mappings from field name to value. Values are
coerced to the declared field types; unknown fields are an error. Rows
without a primary key get one from the database (integer keys) or a
generated UUID (text keys). All rows are checked before any is inserted.

Example:
  quarry seed --db shop.db ./models products products.yaml`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts, args[0], args[1], args[2], cmd)
		},
	}

	addDBFlag(cmd, opts)

	return cmd
}

func runSeed(ctx context.Context, opts *QueryOptions, modelsPath, model, rowsPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	models, err := loadValidModels(modelsPath)
	if err != nil {
		return reportError(formatter, err)
	}
	d, err := findModel(models, model)
	if err != nil {
		return reportError(formatter, err)
	}

	raw, err := readSeedFile(rowsPath)
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "reading rows", err))
	}
	records := make([]ir.Record, len(raw))
	for i, row := range raw {
		rec, err := harness.CoerceRecord(d, row)
		if err != nil {
			return reportError(formatter, WrapExitError(ExitFailure, fmt.Sprintf("row %d", i), err))
		}
		records[i] = rec
	}

	st, err := openStore(ctx, opts, models)
	if err != nil {
		return reportError(formatter, err)
	}
	defer st.Close()

	backend := executor.NewSQL(st, executor.WithLogger(opts.logger()))
	result := SeedResult{Model: model, Keys: make([]any, 0, len(records))}
	pk := d.PrimaryKey().Name
	for i, rec := range records {
		created, err := backend.Create(ctx, d, rec)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, fmt.Sprintf("row %d: %v", i, err), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("inserting row %d", i), err)
		}
		result.Inserted++
		result.Keys = append(result.Keys, ir.Native(created[pk]))
	}
	opts.logger().Info("seeded", "model", model, "rows", result.Inserted)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Inserted %d row(s) into %s\n", result.Inserted, model)
	return nil
}

// readSeedFile decodes a YAML list of rows.
func readSeedFile(path string) ([]map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]interface{}
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return rows, nil
}
