package harness

import (
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
)

// Backend names used in results.
const (
	BackendSQL    = "sql"
	BackendMemory = "memory"
)

// Outcome is what one backend produced for one case.
type Outcome struct {
	Backend   string             `json:"backend"`
	Rows      []ir.Record        `json:"-"`
	HasMore   bool               `json:"has_more"`
	Pages     int                `json:"pages"`
	Rejection *queryir.Rejection `json:"rejection,omitempty"`
}

// CaseResult is the outcome of one case on every backend.
type CaseResult struct {
	Name     string    `json:"name"`
	Pass     bool      `json:"pass"`
	Outcomes []Outcome `json:"outcomes"`
	Errors   []string  `json:"errors,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every case passed on every backend.
	Pass bool `json:"pass"`

	Cases []CaseResult `json:"cases"`

	// Errors contains the failure messages of every case.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Cases:  []CaseResult{},
		Errors: []string{},
	}
}

// AddCase records a case result, failing the scenario if the case failed.
func (r *Result) AddCase(c CaseResult) {
	r.Cases = append(r.Cases, c)
	if !c.Pass {
		r.Pass = false
		r.Errors = append(r.Errors, c.Errors...)
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
