package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quarry/internal/queryir"
)

// Scenario defines a set of query cases over seeded models.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models lists CUE model files. Paths are relative to the scenario file.
	Models []string `yaml:"models,omitempty"`

	// Schema is inline CUE declaring further models.
	Schema string `yaml:"schema,omitempty"`

	// Seed maps a model name to the rows inserted before any case runs.
	Seed map[string][]map[string]interface{} `yaml:"seed,omitempty"`

	// Cases are the queries to run.
	Cases []Case `yaml:"cases"`
}

// Case is one query and its expected outcome.
type Case struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`

	// Query is a resource-style query string. Exclusive with Graph.
	Query string `yaml:"query,omitempty"`

	// Graph is a graph-style request (where, orderBy, select, groupBy,
	// skip, limit, first, after, cursor). Exclusive with Query.
	Graph map[string]interface{} `yaml:"graph,omitempty"`

	// Walk follows next cursors to the last page. Graph cases only.
	Walk bool `yaml:"walk,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect is the expected outcome of a case. At least one field is set.
type Expect struct {
	Rows    []map[string]interface{} `yaml:"rows,omitempty"`
	Count   *int                     `yaml:"count,omitempty"`
	HasMore *bool                    `yaml:"has_more,omitempty"`
	Reject  *RejectExpect            `yaml:"reject,omitempty"`
}

// RejectExpect names the expected rejection.
type RejectExpect struct {
	Kind  string  `yaml:"kind"`
	Token *string `yaml:"token,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Model paths are resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, modelPath := range scenario.Models {
		if !filepath.IsAbs(modelPath) {
			scenario.Models[i] = filepath.Join(base, modelPath)
		}
	}
	for _, modelPath := range scenario.Models {
		if _, err := os.Stat(modelPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: model file not found: %s", modelPath)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML. Model paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "case:" vs "cases:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Models) == 0 && s.Schema == "" {
		return fmt.Errorf("models or schema is required")
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if err := validateCase(i, &c); err != nil {
			return err
		}
		if names[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		names[c.Name] = true
	}
	return nil
}

func validateCase(index int, c *Case) error {
	if c.Name == "" {
		return fmt.Errorf("cases[%d]: name is required", index)
	}
	if c.Model == "" {
		return fmt.Errorf("cases[%d]: model is required", index)
	}
	if c.Query != "" && c.Graph != nil {
		return fmt.Errorf("cases[%d]: query and graph are mutually exclusive", index)
	}
	if c.Walk && c.Graph == nil {
		return fmt.Errorf("cases[%d]: walk requires a graph request", index)
	}

	e := c.Expect
	if e.Rows == nil && e.Count == nil && e.HasMore == nil && e.Reject == nil {
		return fmt.Errorf("cases[%d]: expect needs rows, count, has_more or reject", index)
	}
	if e.Reject != nil {
		if e.Rows != nil || e.Count != nil || e.HasMore != nil {
			return fmt.Errorf("cases[%d]: reject cannot be combined with result expectations", index)
		}
		if !isRejectionKind(e.Reject.Kind) {
			return fmt.Errorf("cases[%d]: unknown rejection kind %q", index, e.Reject.Kind)
		}
	}
	return nil
}

func isRejectionKind(kind string) bool {
	for _, k := range queryir.RejectionKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}
