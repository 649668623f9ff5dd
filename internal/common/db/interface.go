package db

import (
	"context"
	"database/sql"
)

// Database defines the interface for database operations.
// It is satisfied by the MySQL implementation and by test fakes.
type Database interface {
	Querier

	// Transaction executes fn inside a transaction, rolling back on error
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error)

	// Ping verifies the connection is still alive
	Ping(ctx context.Context) error

	// Close closes the database connection
	Close() error
}

// Transaction defines operations available inside a database transaction.
type Transaction interface {
	Querier

	Commit() error
	Rollback() error
}

// Rows abstracts sql.Rows for iteration over query results.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row abstracts sql.Row for single-row queries.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result abstracts sql.Result.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// TxOptions holds transaction options.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// ConvertTxOptions maps TxOptions onto database/sql options.
func ConvertTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.ReadOnly,
	}
}
