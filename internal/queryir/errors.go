package queryir

import (
	"errors"
	"fmt"
)

// RejectionKind categorizes a rejected request.
type RejectionKind string

const (
	// UnknownField indicates a field name that the descriptor does not declare.
	UnknownField RejectionKind = "UNKNOWN_FIELD"

	// InvalidSyntax indicates text that does not match the clause grammar.
	InvalidSyntax RejectionKind = "INVALID_SYNTAX"

	// DisallowedFunction indicates an aggregate outside the whitelist.
	DisallowedFunction RejectionKind = "DISALLOWED_FUNCTION"

	// TypeMismatch indicates a literal that cannot be coerced to the field type.
	TypeMismatch RejectionKind = "TYPE_MISMATCH"

	// InvalidAggregation indicates a select, group or order combination that
	// cannot be aggregated.
	InvalidAggregation RejectionKind = "INVALID_AGGREGATION"

	// InvalidPagination indicates a bad offset, limit or cursor.
	InvalidPagination RejectionKind = "INVALID_PAGINATION"

	// DuplicateAlias indicates two select items with the same output name.
	DuplicateAlias RejectionKind = "DUPLICATE_ALIAS"
)

// RejectionKinds lists every kind.
var RejectionKinds = []RejectionKind{
	UnknownField,
	InvalidSyntax,
	DisallowedFunction,
	TypeMismatch,
	InvalidAggregation,
	InvalidPagination,
	DuplicateAlias,
}

// Rejection is a client error: the request cannot become a Plan.
//
// Rejections are detected synchronously while parsing and assembling, and
// are never retryable. Token is the offending input fragment, verbatim.
type Rejection struct {
	// Kind identifies the error category.
	Kind RejectionKind

	// Token is the offending fragment of the request.
	Token string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *Rejection) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s: %s (token=%q)", e.Kind, e.Message, e.Token)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Reject creates a Rejection with a formatted message.
func Reject(kind RejectionKind, token, format string, args ...any) *Rejection {
	return &Rejection{
		Kind:    kind,
		Token:   token,
		Message: fmt.Sprintf(format, args...),
	}
}

// AsRejection returns the Rejection in err's chain.
// Uses errors.As to handle wrapped errors.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsRejection returns true if err is a Rejection of the given kind.
// Uses errors.As to handle wrapped errors.
func IsRejection(err error, kind RejectionKind) bool {
	r, ok := AsRejection(err)
	return ok && r.Kind == kind
}
