package planner

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/schema"

	"github.com/roach88/quarry/internal/metrics"
	"github.com/roach88/quarry/internal/parser"
	"github.com/roach88/quarry/internal/queryir"
	qschema "github.com/roach88/quarry/internal/schema"
)

// Reserved parameter names. Every other key is a filter.
const (
	ParamSelect  = "select"
	ParamOrderBy = "orderBy"
	ParamGroupBy = "groupBy"
	ParamOffset  = "offset"
	ParamSkip    = "skip" // alias of offset
	ParamLimit   = "limit"
	ParamAfter   = "after"
)

var reserved = map[string]bool{
	ParamSelect:  true,
	ParamOrderBy: true,
	ParamGroupBy: true,
	ParamOffset:  true,
	ParamSkip:    true,
	ParamLimit:   true,
	ParamAfter:   true,
}

// IsReserved reports whether key is a clause parameter rather than a filter.
func IsReserved(key string) bool {
	return reserved[key]
}

// Params is a raw resource-style parameter set, compatible with url.Values.
type Params map[string][]string

var schemaDecoder = schema.NewDecoder()

func init() {
	schemaDecoder.IgnoreUnknownKeys(true)
}

// pageParams receives the pagination keys.
type pageParams struct {
	Offset *int64 `schema:"offset"`
	Skip   *int64 `schema:"skip"`
	Limit  *int64 `schema:"limit"`
	After  string `schema:"after"`
}

// Build parses a resource-style parameter set into a plan.
//
// Example:
//
//	category=Electronics&select=category,sum(price);total&groupBy=category&orderBy=category:desc&limit=10
func Build(d *qschema.Descriptor, params Params, opts Options) (*queryir.Plan, error) {
	plan, err := build(d, params, opts)
	if err != nil {
		if r, ok := queryir.AsRejection(err); ok {
			metrics.Rejected(string(r.Kind))
		}
		return nil, err
	}
	metrics.PlanBuilt(metrics.StyleResource)
	return plan, nil
}

func build(d *qschema.Descriptor, params Params, opts Options) (*queryir.Plan, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make(map[string][]string)
	for _, k := range keys {
		if !reserved[k] {
			filters[k] = params[k]
			continue
		}
		if len(params[k]) > 1 {
			return nil, queryir.Reject(queryir.InvalidSyntax, k, "parameter %s is given more than once", k)
		}
	}
	if _, hasOffset := params[ParamOffset]; hasOffset {
		if _, hasSkip := params[ParamSkip]; hasSkip {
			return nil, queryir.Reject(queryir.InvalidSyntax, ParamSkip, "skip is an alias of offset; give only one")
		}
	}

	var c Clauses
	var err error

	if c.Filter, err = parser.ParseFilters(d, filters); err != nil {
		return nil, err
	}
	if raw, ok := single(params, ParamSelect); ok {
		if c.Select, err = parser.ParseSelect(d, raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := single(params, ParamOrderBy); ok {
		if c.Order, err = parser.ParseOrder(d, raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := single(params, ParamGroupBy); ok {
		if c.Group, err = parser.ParseGroup(d, raw); err != nil {
			return nil, err
		}
	}
	if c.Page, err = decodePage(params); err != nil {
		return nil, err
	}

	return Assemble(d, c, opts)
}

// ParseQuery splits a raw query string into Params. Unlike url.ParseQuery it
// keeps ";" inside values, since ";" introduces select aliases. A leading
// "?" is ignored; keys and values are percent-decoded.
func ParseQuery(raw string) (Params, error) {
	params := make(Params)
	raw = strings.TrimPrefix(raw, "?")
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("parse query key %q: %w", k, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("parse query value %q: %w", v, err)
		}
		params[key] = append(params[key], value)
	}
	return params, nil
}

func single(params Params, key string) (string, bool) {
	values, ok := params[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// decodePage decodes the pagination keys with gorilla/schema.
func decodePage(params Params) (PageRequest, error) {
	src := make(map[string][]string, 4)
	for _, k := range []string{ParamOffset, ParamSkip, ParamLimit, ParamAfter} {
		raw, ok := single(params, k)
		if !ok {
			continue
		}
		if raw == "" {
			return PageRequest{}, queryir.Reject(queryir.InvalidPagination, raw, "%s has no value", k)
		}
		src[k] = []string{raw}
	}
	if len(src) == 0 {
		return PageRequest{}, nil
	}

	var pp pageParams
	if err := schemaDecoder.Decode(&pp, src); err != nil {
		key := failedKey(err)
		return PageRequest{}, queryir.Reject(queryir.InvalidPagination, first(src[key]),
			"%s must be an integer", key)
	}

	req := PageRequest{Offset: pp.Offset, Limit: pp.Limit, After: pp.After}
	if pp.Skip != nil {
		req.Offset = pp.Skip
	}
	return req, nil
}

// failedKey returns the first parameter a decode error names.
func failedKey(err error) string {
	var multi schema.MultiError
	if errors.As(err, &multi) {
		keys := make([]string, 0, len(multi))
		for k := range multi {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			return keys[0]
		}
	}
	var conv schema.ConversionError
	if errors.As(err, &conv) {
		return conv.Key
	}
	return ""
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
