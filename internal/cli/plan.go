package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/graphquery"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/planner"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/schema"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	QueryOptions
	Graph   bool   // the query argument is a JSON graph request
	Dialect string // "" renders every dialect
}

// PlanResult is the plan for one request and the SQL it compiles to.
type PlanResult struct {
	Model       string          `json:"model"`
	Style       string          `json:"style"`
	Fingerprint string          `json:"fingerprint"`
	Plan        json.RawMessage `json:"plan"`
	SQL         []CompiledSQL   `json:"sql"`
}

// CompiledSQL is one dialect's rendering of a plan.
type CompiledSQL struct {
	Dialect string `json:"dialect"`
	SQL     string `json:"sql"`
	Args    []any  `json:"args"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "plan <models> <model> <query>",
		Short: "Show the plan and SQL for a request",
		Long: `Build the plan for a request without running it.

The query is a resource-style query string, or with --graph a JSON
graph-style request. The plan fingerprint and the parameterized SQL for
each dialect are printed. Rejected requests exit with code 1 and report
the rejection kind and offending token.

Examples:
  quarry plan ./models products 'category=Electronics&orderBy=price:desc'
  quarry plan ./models products --graph '{"where": {"price_lt": 50}, "first": 10}'
  quarry plan ./models products 'select=category,sum(stock)&groupBy=category' --dialect postgres`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], args[1], args[2], cmd)
		},
	}

	addLimitFlags(cmd, &opts.QueryOptions)
	cmd.Flags().BoolVar(&opts.Graph, "graph", false, "treat the query as a JSON graph request")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "render only this dialect (sqlite|postgres)")

	return cmd
}

func runPlan(opts *PlanOptions, modelsPath, model, query string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	dialects := []querysql.Dialect{querysql.SQLite, querysql.Postgres}
	if opts.Dialect != "" {
		d, err := querysql.ParseDialect(opts.Dialect)
		if err != nil {
			return reportError(formatter, WrapExitError(ExitCommandError, "invalid --dialect", err))
		}
		dialects = []querysql.Dialect{d}
	}

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

	plan, err := buildPlan(d, query, opts.Graph, popts)
	if err != nil {
		logRejection(opts.logger(), model, err)
		return reportError(formatter, err)
	}

	result, err := describePlan(d, plan, opts.Graph, dialects)
	if err != nil {
		return reportError(formatter, err)
	}
	opts.logger().Info("plan built", "model", model, "plan", result.Fingerprint)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "plan %s (%s)\n", result.Fingerprint, result.Style)
	for _, q := range result.SQL {
		fmt.Fprintf(w, "\n-- %s\n%s\n-- args: %v\n", q.Dialect, q.SQL, q.Args)
	}
	return nil
}

// buildPlan plans a resource-style query string or a JSON graph request.
func buildPlan(d *schema.Descriptor, query string, graph bool, opts planner.Options) (*queryir.Plan, error) {
	if graph {
		req, err := graphquery.DecodeRequest([]byte(query))
		if err != nil {
			return nil, err
		}
		return graphquery.Normalize(d, req, opts)
	}

	params, err := planner.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return nil, err
	}
	return planner.Build(d, params, opts)
}

func describePlan(d *schema.Descriptor, plan *queryir.Plan, graph bool, dialects []querysql.Dialect) (*PlanResult, error) {
	canonical, err := plan.Canonical()
	if err != nil {
		return nil, err
	}
	planJSON, err := ir.MarshalCanonical(canonical)
	if err != nil {
		return nil, err
	}
	fp, err := plan.Fingerprint()
	if err != nil {
		return nil, err
	}

	result := &PlanResult{
		Model:       d.Model(),
		Style:       "resource",
		Fingerprint: fp,
		Plan:        planJSON,
	}
	if graph {
		result.Style = "graph"
	}

	for _, dialect := range dialects {
		q, err := querysql.NewCompiler(d, dialect).Compile(plan)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", dialect, err)
		}
		result.SQL = append(result.SQL, CompiledSQL{Dialect: dialect.String(), SQL: q.SQL, Args: q.Args})
	}
	return result, nil
}

// outputColumns returns the result column names in select order.
func outputColumns(plan *queryir.Plan) []string {
	cols := make([]string, len(plan.Select))
	for i, item := range plan.Select {
		cols[i] = item.OutputName()
	}
	return cols
}
