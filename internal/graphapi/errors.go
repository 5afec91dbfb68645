package graphapi

import (
	"errors"

	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/store"
)

// Error codes reported in the "code" extension besides rejection kinds.
const (
	CodeNotFound = "NOT_FOUND"
	CodeInternal = "INTERNAL"
)

// Error is a resolver error carrying a machine-readable code.
// It implements gqlerrors.ExtendedError.
type Error struct {
	Code  string
	Token string
	err   error
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// Extensions returns the code (and offending token for rejections).
func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.Code}
	if e.Token != "" {
		ext["token"] = e.Token
	}
	return ext
}

// wrapError attaches a code to err.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	if r, ok := queryir.AsRejection(err); ok {
		return &Error{Code: string(r.Kind), Token: r.Token, err: r}
	}
	if store.IsNotFound(err) {
		return &Error{Code: CodeNotFound, err: err}
	}
	return &Error{Code: CodeInternal, err: err}
}
