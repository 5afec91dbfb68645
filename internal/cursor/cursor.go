// Package cursor implements opaque keyset cursors.
//
// A cursor records the sort-key values of the last row of a page, in
// effective order: the requested order followed by the primary key as a
// final ascending tie break. The next page is everything strictly after
// that position under SQLite null ordering (nulls first ascending, nulls
// last descending).
//
// Wire form, base64url without padding:
//
//	{"keys":["200","6"],"sig":"price:desc,id:asc","sum":"<hash>","v":1}
//
// The signature binds a cursor to the order it was issued for and the
// checksum rejects edited tokens. A cursor is opaque, not secret.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/schema"
)

// Version is the cursor format version.
const Version = 1

// checksumLength is the number of hex characters of the fingerprint kept.
const checksumLength = 16

// EffectiveOrder returns order followed by pk ascending, unless pk is
// already ordered. The result is a new slice.
func EffectiveOrder(order []queryir.OrderItem, pk string) []queryir.OrderItem {
	eff := make([]queryir.OrderItem, 0, len(order)+1)
	hasPK := false
	for _, o := range order {
		if o.Field == pk {
			hasPK = true
		}
		eff = append(eff, o)
	}
	if !hasPK {
		eff = append(eff, queryir.OrderItem{Field: pk, Position: len(order)})
	}
	return eff
}

// Signature renders an order as "field:dir,field:dir".
func Signature(order []queryir.OrderItem) string {
	parts := make([]string, len(order))
	for i, o := range order {
		parts[i] = o.Field + ":" + o.Direction()
	}
	return strings.Join(parts, ",")
}

type token struct {
	V    int       `json:"v"`
	Sig  string    `json:"sig"`
	Keys []*string `json:"keys"`
	Sum  string    `json:"sum"`
}

// Encode builds the cursor positioned at row for the given request order.
// row must carry every effective sort key under its field name.
func Encode(d *schema.Descriptor, order []queryir.OrderItem, row ir.Record) (string, error) {
	eff := EffectiveOrder(order, d.PrimaryKey().Name)
	sig := Signature(eff)

	keys := make([]*string, len(eff))
	for i, o := range eff {
		v, ok := row[o.Field]
		if !ok {
			return "", fmt.Errorf("encode cursor: row has no value for sort key %s", o.Field)
		}
		if ir.IsNull(v) {
			continue
		}
		s := ir.Format(v)
		keys[i] = &s
	}

	sum, err := checksum(sig, keys)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}

	payload, err := ir.MarshalCanonical(map[string]any{
		"v":    Version,
		"sig":  sig,
		"keys": keyList(keys),
		"sum":  sum,
	})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// Decode validates raw against the request order and returns its keys typed
// by the descriptor. Every failure is an InvalidPagination rejection
// carrying the raw token.
func Decode(d *schema.Descriptor, order []queryir.OrderItem, raw string) (*queryir.Cursor, error) {
	eff := EffectiveOrder(order, d.PrimaryKey().Name)

	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, reject(raw, "cursor is not valid base64url")
	}

	var tok token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, reject(raw, "cursor payload is malformed")
	}
	if tok.V != Version {
		return nil, reject(raw, "unsupported cursor version %d", tok.V)
	}

	sum, err := checksum(tok.Sig, tok.Keys)
	if err != nil || sum != tok.Sum {
		return nil, reject(raw, "cursor checksum mismatch")
	}
	if sig := Signature(eff); tok.Sig != sig {
		return nil, reject(raw, "cursor was issued for order %q, not %q", tok.Sig, sig)
	}
	if len(tok.Keys) != len(eff) {
		return nil, reject(raw, "cursor has %d keys, order has %d", len(tok.Keys), len(eff))
	}

	c := &queryir.Cursor{Keys: make([]queryir.CursorKey, len(eff))}
	for i, o := range eff {
		f, ok := d.Lookup(o.Field)
		if !ok {
			return nil, reject(raw, "cursor key %s is not a field", o.Field)
		}
		if tok.Keys[i] == nil {
			c.Keys[i] = queryir.CursorKey{Field: f.Name, Value: ir.Null{}}
			continue
		}
		v, err := f.Type.ParseLiteral(*tok.Keys[i])
		if err != nil {
			return nil, reject(raw, "cursor key %s: %v", f.Name, err)
		}
		c.Keys[i] = queryir.CursorKey{Field: f.Name, Value: v}
	}
	return c, nil
}

// After builds the keyset predicate selecting rows strictly after c in the
// effective order eff:
//
//	k1 > v1 OR (k1 = v1 AND k2 > v2) OR ...
//
// with each comparison adjusted for direction and null placement.
func After(c *queryir.Cursor, eff []queryir.OrderItem) queryir.Predicate {
	terms := make([]queryir.Predicate, 0, len(eff))
	prefix := make([]queryir.Predicate, 0, len(eff))

	for i, o := range eff {
		if i >= len(c.Keys) {
			break
		}
		v := c.Keys[i].Value

		if step := strictlyAfter(o, v); step != nil {
			term := make([]queryir.Predicate, 0, len(prefix)+1)
			term = append(term, prefix...)
			term = append(term, step)
			if len(term) == 1 {
				terms = append(terms, term[0])
			} else {
				terms = append(terms, queryir.And{Predicates: term})
			}
		}
		prefix = append(prefix, equalTo(o.Field, v))
	}

	if len(terms) == 1 {
		return terms[0]
	}
	return queryir.Or{Predicates: terms}
}

// strictlyAfter returns the predicate for "field sorts after v", or nil when
// nothing can (a null under descending order is already last).
func strictlyAfter(o queryir.OrderItem, v ir.Value) queryir.Predicate {
	null := ir.IsNull(v)
	switch {
	case !o.Desc && null:
		return queryir.Compare{Field: o.Field, Op: queryir.OpNot, Value: ir.Null{}}
	case !o.Desc:
		return queryir.Compare{Field: o.Field, Op: queryir.OpGt, Value: v}
	case null:
		return nil
	default:
		return queryir.Or{Predicates: []queryir.Predicate{
			queryir.Compare{Field: o.Field, Op: queryir.OpLt, Value: v},
			queryir.Compare{Field: o.Field, Op: queryir.OpEq, Value: ir.Null{}},
		}}
	}
}

func equalTo(field string, v ir.Value) queryir.Predicate {
	if ir.IsNull(v) {
		return queryir.Compare{Field: field, Op: queryir.OpEq, Value: ir.Null{}}
	}
	return queryir.Compare{Field: field, Op: queryir.OpEq, Value: v}
}

func checksum(sig string, keys []*string) (string, error) {
	fp, err := ir.Fingerprint(ir.DomainCursor, map[string]any{
		"sig":  sig,
		"keys": keyList(keys),
	})
	if err != nil {
		return "", err
	}
	return fp[:checksumLength], nil
}

func keyList(keys []*string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		if k != nil {
			out[i] = *k
		}
	}
	return out
}

func reject(raw, format string, args ...any) error {
	return queryir.Reject(queryir.InvalidPagination, raw, format, args...)
}
