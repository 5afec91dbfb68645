package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/store"
)

// RunQueryOptions holds flags for the query command.
type RunQueryOptions struct {
	QueryOptions
	Graph bool
}

// QueryResult is one page of results.
type QueryResult struct {
	Model      string           `json:"model"`
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunQueryOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "query <models> <model> <query>",
		Short: "Run a request against a database",
		Long: `Plan a request and run it against the database named by --db.

Tables for every model are created if missing. Resource-style queries
page with limit/offset, or with after=<cursor> to continue a cursor walk;
graph requests use first/after.

Examples:
  quarry query --db shop.db ./models products 'category=Electronics&select=name,price'
  quarry query --db postgres://localhost/shop ./models products --graph '{"first": 2}'`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, args[0], args[1], args[2], cmd)
		},
	}

	addLimitFlags(cmd, &opts.QueryOptions)
	addDBFlag(cmd, &opts.QueryOptions)
	cmd.Flags().BoolVar(&opts.Graph, "graph", false, "treat the query as a JSON graph request")

	return cmd
}

func runQuery(ctx context.Context, opts *RunQueryOptions, modelsPath, model, query string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	popts, err := opts.plannerOptions()
	if err != nil {
		return reportError(formatter, err)
	}
	models, err := loadValidModels(modelsPath)
	if err != nil {
		return reportError(formatter, err)
	}
	d, err := findModel(models, model)
	if err != nil {
		return reportError(formatter, err)
	}

	// Rejected requests never touch the database.
	plan, err := buildPlan(d, query, opts.Graph, popts)
	if err != nil {
		logRejection(logger, model, err)
		return reportError(formatter, err)
	}

	st, err := openStore(ctx, &opts.QueryOptions, models)
	if err != nil {
		return reportError(formatter, err)
	}
	defer st.Close()

	page, err := executor.NewSQL(st, executor.WithLogger(logger)).List(ctx, d, plan)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "query failed", err)
	}

	result := QueryResult{
		Model:      model,
		Columns:    outputColumns(plan),
		Rows:       nativeRows(page.Rows),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	formatter.Rows(result.Columns, page.Rows)
	fmt.Fprintf(formatter.Writer, "(%d row(s))\n", len(page.Rows))
	if page.NextCursor != "" {
		fmt.Fprintf(formatter.Writer, "next cursor: %s\n", page.NextCursor)
	} else if page.HasMore {
		fmt.Fprintln(formatter.Writer, "more rows available")
	}
	return nil
}

// openStore opens the --db database and registers every model.
func openStore(ctx context.Context, opts *QueryOptions, models []*schema.Descriptor) (*store.Store, error) {
	st, err := store.Open(opts.DB, store.WithLogger(opts.logger()))
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "opening database", Err: &LoadError{Code: ErrCodeDatabase, Message: err.Error()}}
	}
	for _, d := range models {
		if err := st.Register(ctx, d); err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("registering %s", d.Model()), err)
		}
	}
	return st, nil
}

func logRejection(logger *slog.Logger, model string, err error) {
	if r, ok := queryir.AsRejection(err); ok {
		logger.Info("query rejected", "model", model, "kind", string(r.Kind), "token", r.Token)
	}
}
