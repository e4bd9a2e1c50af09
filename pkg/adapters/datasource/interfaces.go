package datasource

import (
	"context"
	"errors"
)

// ErrStoreClosed is returned by a store used after Close.
var ErrStoreClosed = errors.New("store is closed")

// Store is the relational database the assistant answers questions from.
// The same store holds the application's own chat and escalation tables.
//
// Placeholders are written as "?" everywhere; adapters rebind them to
// their native form. Query returns at most the configured row cap.
type Store interface {
	// Query runs a statement that returns rows. Each row maps column name to
	// a normalised scalar (see NormalizeValue).
	Query(ctx context.Context, sqlText string, params ...any) ([]map[string]any, error)

	// QueryReadOnly runs generated SQL with writes refused by the engine
	// itself. The text is passed through without placeholder rebinding.
	QueryReadOnly(ctx context.Context, sqlText string) ([]map[string]any, error)

	// Run executes a statement that does not return rows.
	Run(ctx context.Context, sqlText string, params ...any) (RunResult, error)

	// GetSchema returns the CREATE TABLE text of every user table, ordered by
	// table name and separated by blank lines.
	GetSchema(ctx context.Context) (string, error)

	// GetSampleData returns up to limitPerTable rows from every user table in
	// table-name order. A table that cannot be read yields an empty sample.
	GetSampleData(ctx context.Context, limitPerTable int) ([]TableSample, error)

	// Dialect reports the SQL flavour generated queries must target.
	Dialect() Dialect

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}

// RunResult reports the effect of Run. LastInsertID is only populated by
// drivers that support it; use INSERT ... RETURNING through Query when the
// new key is needed portably.
type RunResult struct {
	LastInsertID int64
	RowsAffected int64
}

// TableSample holds sample rows for one table.
type TableSample struct {
	Table string
	Rows  []map[string]any
}

// DefaultMaxResultRows caps rows read by Query when no limit is configured.
const DefaultMaxResultRows = 1000
