package dialect

import (
	"context"
)

// Supported dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the two standard SQL operations.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. The v
	// argument, when non-nil, receives the execution result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows. The v argument
	// receives the rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal database abstraction the storage layer runs on.
type Driver interface {
	ExecQuerier
	// Tx starts a transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name.
	Dialect() string
}

// Tx is a transactional connection.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
