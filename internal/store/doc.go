// Package store provides descriptor-driven relational storage for quarry
// models.
//
// A Store wraps database/sql over SQLite (mattn/go-sqlite3) or Postgres
// (pgx stdlib). Tables are created from schema descriptors and every model
// registered in a database is recorded in quarry_models with its descriptor
// fingerprint.
//
// # Storage Rules
//
// Identifiers:
//   - Table and column names come from the descriptor and are always quoted
//   - Values are always bound arguments
//
// Types:
//   - integer: INTEGER / BIGINT
//   - text: TEXT
//   - real: REAL / DOUBLE PRECISION
//   - boolean: BOOLEAN (SQLite stores 0 and 1)
//   - datetime: TEXT in TimeLayout on SQLite (text order is chronological),
//     TIMESTAMPTZ on Postgres
//
// Primary keys:
//   - A missing integer key is assigned by the database
//   - A missing text key is generated (UUIDv7 by default)
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection, so ":memory:" databases persist for the Store's life
package store
