package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/graphquery"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/planner"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/store"
	"github.com/roach88/quarry/internal/testutil"
)

// maxWalkPages bounds cursor walks so a broken cursor cannot loop forever.
const maxWalkPages = 1000

// Harness holds the seeded backends of one scenario.
type Harness struct {
	models   map[string]*schema.Descriptor
	store    *store.Store
	backends []namedBackend
	opts     planner.Options
	logger   *slog.Logger
}

type namedBackend struct {
	name    string
	backend executor.Backend
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the harness logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// WithPlannerOptions sets the limit defaults used by every case.
func WithPlannerOptions(opts planner.Options) Option {
	return func(h *Harness) { h.opts = opts }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Generated text keys are deterministic.
//
// Execution flow:
// 1. Compile and validate the scenario's models
// 2. Create fresh SQL and memory backends and seed both
// 3. Run every case on every backend
// 4. Check expectations and backend agreement
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h, err := New(ctx, scenario, opts...)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	result := NewResult()
	for _, c := range scenario.Cases {
		result.AddCase(h.RunCase(ctx, c))
	}
	return result, nil
}

// New compiles the scenario's models and seeds fresh backends.
func New(ctx context.Context, scenario *Scenario, opts ...Option) (*Harness, error) {
	h := &Harness{
		opts:   planner.DefaultOptions(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	models, err := LoadModels(scenario)
	if err != nil {
		return nil, err
	}
	h.models = make(map[string]*schema.Descriptor, len(models))
	for _, d := range models {
		h.models[d.Model()] = d
	}

	st, err := store.Open(":memory:",
		store.WithLogger(h.logger),
		store.WithIDGenerator(testutil.NewSequenceIDGenerator("id")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	h.store = st

	for _, d := range models {
		if err := st.Register(ctx, d); err != nil {
			st.Close()
			return nil, fmt.Errorf("register %s: %w", d.Model(), err)
		}
	}

	h.backends = []namedBackend{
		{BackendSQL, executor.NewSQL(st, executor.WithLogger(h.logger))},
		{BackendMemory, executor.NewMemory(
			executor.WithLogger(h.logger),
			executor.WithIDGenerator(testutil.NewSequenceIDGenerator("id")),
		)},
	}

	if err := h.seed(ctx, scenario.Seed); err != nil {
		st.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the SQL backend's database.
func (h *Harness) Close() error {
	return h.store.Close()
}

// LoadModels compiles the scenario's model files and inline schema, then
// validates them together.
func LoadModels(scenario *Scenario) ([]*schema.Descriptor, error) {
	var models []*schema.Descriptor
	for _, path := range scenario.Models {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model file: %w", err)
		}
		compiled, err := compiler.CompileSource(path, string(src))
		if err != nil {
			return nil, err
		}
		models = append(models, compiled...)
	}
	if scenario.Schema != "" {
		compiled, err := compiler.CompileSource(scenario.Name+".schema", scenario.Schema)
		if err != nil {
			return nil, err
		}
		models = append(models, compiled...)
	}

	if verrs := compiler.Validate(models); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("invalid models: %w", errors.Join(errs...))
	}
	return models, nil
}

// seed inserts rows into every backend, model by model in name order.
func (h *Harness) seed(ctx context.Context, seed map[string][]map[string]interface{}) error {
	names := make([]string, 0, len(seed))
	for name := range seed {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d, ok := h.models[name]
		if !ok {
			return fmt.Errorf("seed: unknown model %s", name)
		}
		for i, raw := range seed[name] {
			rec, err := CoerceRecord(d, raw)
			if err != nil {
				return fmt.Errorf("seed %s[%d]: %w", name, i, err)
			}
			for _, b := range h.backends {
				if _, err := b.backend.Create(ctx, d, rec); err != nil {
					return fmt.Errorf("seed %s[%d] into %s: %w", name, i, b.name, err)
				}
			}
		}
		h.logger.Debug("seeded", "model", name, "rows", len(seed[name]))
	}
	return nil
}

// CoerceRecord converts decoded YAML or JSON values into a typed record.
func CoerceRecord(d *schema.Descriptor, raw map[string]interface{}) (ir.Record, error) {
	rec := make(ir.Record, len(raw))
	for name, x := range raw {
		f, ok := d.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown field %s on %s", name, d.Model())
		}
		v, err := f.Type.Coerce(x)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		rec[name] = v
	}
	return rec, nil
}

// RunCase runs one case on every backend.
func (h *Harness) RunCase(ctx context.Context, c Case) CaseResult {
	result := CaseResult{Name: c.Name, Pass: true}
	fail := func(format string, args ...any) {
		result.Pass = false
		result.Errors = append(result.Errors, fmt.Sprintf("case %s: ", c.Name)+fmt.Sprintf(format, args...))
	}

	d, ok := h.models[c.Model]
	if !ok {
		fail("unknown model %s", c.Model)
		return result
	}

	for _, b := range h.backends {
		outcome, err := h.execute(ctx, b, d, c)
		if err != nil {
			fail("%s: %v", b.name, err)
			continue
		}
		result.Outcomes = append(result.Outcomes, outcome)
		for _, aerr := range checkOutcome(c.Expect, outcome) {
			fail("%v", aerr)
		}
	}

	if len(result.Outcomes) == len(h.backends) {
		for _, other := range result.Outcomes[1:] {
			if err := checkAgreement(result.Outcomes[0], other); err != nil {
				fail("%v", err)
			}
		}
	}

	h.logger.Debug("case finished", "case", c.Name, "pass", result.Pass)
	return result
}

// execute runs c on one backend. Rejections are outcomes, not errors.
func (h *Harness) execute(ctx context.Context, b namedBackend, d *schema.Descriptor, c Case) (Outcome, error) {
	outcome := Outcome{Backend: b.name}
	var after string

	for {
		plan, err := PlanCase(d, c, after, h.opts)
		if err != nil {
			if r, ok := queryir.AsRejection(err); ok {
				outcome.Rejection = r
				return outcome, nil
			}
			return outcome, err
		}

		page, err := b.backend.List(ctx, d, plan)
		if err != nil {
			return outcome, err
		}
		outcome.Rows = append(outcome.Rows, page.Rows...)
		outcome.HasMore = page.HasMore
		outcome.Pages++

		if !c.Walk || page.NextCursor == "" {
			return outcome, nil
		}
		if outcome.Pages >= maxWalkPages {
			return outcome, fmt.Errorf("cursor walk exceeded %d pages", maxWalkPages)
		}
		after = page.NextCursor
	}
}

// PlanCase builds the plan for a case. Walk cases always use cursor
// pagination; after overrides the request's cursor.
func PlanCase(d *schema.Descriptor, c Case, after string, opts planner.Options) (*queryir.Plan, error) {
	if c.Graph != nil {
		data, err := json.Marshal(c.Graph)
		if err != nil {
			return nil, fmt.Errorf("encode graph request: %w", err)
		}
		req, err := graphquery.DecodeRequest(data)
		if err != nil {
			return nil, err
		}
		if c.Walk {
			req.Cursor = true
		}
		if after != "" {
			req.After = after
		}
		return graphquery.Normalize(d, req, opts)
	}

	params, err := planner.ParseQuery(c.Query)
	if err != nil {
		return nil, err
	}
	return planner.Build(d, params, opts)
}
