// Package ports declares the interfaces the core depends on but does
// not implement: persistence and the TAK/rule document repositories.
package ports

import "context"

// Store is the persistence port. The core never opens a SQL
// connection directly; every component that needs durable state takes
// a Store. Queries are externally composed templates with positional
// placeholders — the core never concatenates user-supplied values into
// query text.
type Store interface {
	// Execute runs a mutating statement and returns the number of rows
	// affected.
	Execute(ctx context.Context, query string, args ...interface{}) (int64, error)

	// Fetch runs a query and scans all result rows into dest, which
	// must be a pointer to a slice of structs (sqlx.Select semantics).
	Fetch(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Scalar runs a query expected to return at most one row and scans
	// it into dest, reporting false if no row matched.
	Scalar(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error)

	// Exists runs a query expected to return a single boolean/count
	// column and reports whether any row matched.
	Exists(ctx context.Context, query string, args ...interface{}) (bool, error)

	// Begin opens a transaction. Callers must Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a transaction scope. It offers the same mutating surface as
// Store so callers can write atomicity-sensitive code (the Record
// Service's update, the Orchestrator's abstraction rebuild)
// without special-casing the single-statement path.
type Tx interface {
	Execute(ctx context.Context, query string, args ...interface{}) (int64, error)
	Fetch(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Scalar(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error)
	Commit() error
	Rollback() error
}
