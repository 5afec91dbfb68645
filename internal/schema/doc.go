// Package schema describes the typed data model that every query is checked
// against.
//
// A Descriptor maps public field names to stored columns and declared types.
// Parsers consult it to reject unknown fields, coerce literals and resolve
// column names; nothing else in a plan is trusted.
package schema
