package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/graphapi"
)

// GraphQLOptions holds flags for the graphql command.
type GraphQLOptions struct {
	QueryOptions
	Variables string // JSON object
}

// NewGraphQLCommand creates the graphql command.
func NewGraphQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphQLOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "graphql <models> <document>",
		Short: "Execute a GraphQL document against a database",
		Long: `Build a GraphQL schema from the models and execute one document.

Every model gets a get-by-key query, a list query, a cursor page query and
create/update/delete mutations. A document argument starting with @ is
read from that file. Rejected requests come back as GraphQL errors whose
extensions carry the rejection code and token; they exit with code 1.

Examples:
  quarry graphql --db shop.db ./models '{ products(where: {price_lt: 100}) { name price } }'
  quarry graphql --db shop.db ./models @create.graphql --vars '{"name": "Lamp"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphQL(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	addLimitFlags(cmd, &opts.QueryOptions)
	addDBFlag(cmd, &opts.QueryOptions)
	cmd.Flags().StringVar(&opts.Variables, "vars", "", "variables as a JSON object")

	return cmd
}

func runGraphQL(ctx context.Context, opts *GraphQLOptions, modelsPath, document string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	if strings.HasPrefix(document, "@") {
		data, err := os.ReadFile(document[1:])
		if err != nil {
			return reportError(formatter, WrapExitError(ExitCommandError, "reading document", err))
		}
		document = string(data)
	}

	var vars map[string]any
	if opts.Variables != "" {
		if err := json.Unmarshal([]byte(opts.Variables), &vars); err != nil {
			return reportError(formatter, WrapExitError(ExitCommandError, "invalid --vars", err))
		}
	}

	popts, err := opts.plannerOptions()
	if err != nil {
		return reportError(formatter, err)
	}
	models, err := loadValidModels(modelsPath)
	if err != nil {
		return reportError(formatter, err)
	}

	st, err := openStore(ctx, &opts.QueryOptions, models)
	if err != nil {
		return reportError(formatter, err)
	}
	defer st.Close()

	api, err := graphapi.New(executor.NewSQL(st, executor.WithLogger(logger)), models,
		graphapi.WithLogger(logger),
		graphapi.WithPlannerOptions(popts),
	)
	if err != nil {
		return reportError(formatter, err)
	}

	result := api.Execute(ctx, document, vars)

	enc := json.NewEncoder(formatter.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if result.HasErrors() {
		return NewExitError(ExitFailure, fmt.Sprintf("graphql returned %d error(s)", len(result.Errors)))
	}
	return nil
}
