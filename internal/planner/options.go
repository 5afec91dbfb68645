package planner

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Options bounds pagination.
type Options struct {
	DefaultLimit int64 `validate:"gte=1"`
	MaxLimit     int64 `validate:"gtefield=DefaultLimit"`
}

// DefaultOptions returns a default limit of 100 clamped at 1000.
func DefaultOptions() Options {
	return Options{DefaultLimit: 100, MaxLimit: 1000}
}

// Validate checks the options are usable.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid planner options: %w", err)
	}
	return nil
}
