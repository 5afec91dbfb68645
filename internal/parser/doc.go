// Package parser turns raw clause text into validated plan fragments.
//
// Every function is pure: it reads raw text and a schema descriptor and
// returns queryir nodes or a *queryir.Rejection. Parsers fail fast on the
// first problem and never echo raw identifiers into their output; field
// names in results are the descriptor's own.
package parser
