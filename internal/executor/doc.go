// Package executor runs query plans and record operations.
//
// Two backends implement Backend:
//   - SQL compiles plans with querysql and runs them on a store
//   - Memory evaluates the same plans over rows held in memory
//
// Both backends produce the same rows in the same order for the same plan:
// text sorts bytewise, nulls sort first ascending and last descending, and
// the primary key (or the group fields) completes every order. The memory
// backend is used to cross-check the SQL backend in tests and scenarios.
//
// # Pages
//
// Backends fetch one row past the page limit, so HasMore is set exactly when
// rows follow the page. For cursor pages, NextCursor then encodes the sort
// keys of the last row; requesting the page after it returns the rows that
// follow under the same order.
package executor
