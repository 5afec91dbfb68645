package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/quarry/internal/planner"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/schema"
)

// SnapshotSQL renders the SQL compiled for the first page of every case in
// both dialects. Rejected cases record their rejection instead.
func SnapshotSQL(scenario *Scenario, opts planner.Options) ([]byte, error) {
	models, err := LoadModels(scenario)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*schema.Descriptor, len(models))
	for _, d := range models {
		byName[d.Model()] = d
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "-- scenario: %s\n", scenario.Name)
	for _, c := range scenario.Cases {
		d, ok := byName[c.Model]
		if !ok {
			return nil, fmt.Errorf("case %s: unknown model %s", c.Name, c.Model)
		}

		plan, err := PlanCase(d, c, "", opts)
		if err != nil {
			r, ok := queryir.AsRejection(err)
			if !ok {
				return nil, fmt.Errorf("case %s: %w", c.Name, err)
			}
			fmt.Fprintf(&buf, "\n-- case: %s\n-- rejected: %s token=%q\n", c.Name, r.Kind, r.Token)
			continue
		}

		for _, dialect := range []querysql.Dialect{querysql.SQLite, querysql.Postgres} {
			q, err := querysql.NewCompiler(d, dialect).Compile(plan)
			if err != nil {
				return nil, fmt.Errorf("case %s: compile %s: %w", c.Name, dialect, err)
			}
			fmt.Fprintf(&buf, "\n-- case: %s (%s)\n%s\n-- args: %v\n", c.Name, dialect, q.SQL, q.Args)
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario, fails the test for every failed case,
// and compares the compiled SQL against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	h := &Harness{opts: planner.DefaultOptions()}
	for _, opt := range opts {
		opt(h)
	}
	snapshot, err := SnapshotSQL(scenario, h.opts)
	if err != nil {
		return result, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return result, nil
}
