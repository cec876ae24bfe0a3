package domain

import "context"

// Cursor is a lazy sequence of rows produced by a query. Column metadata is
// available before the first row. Whether rows are streamed or materialized
// is an implementation detail the caller never sees.
type Cursor interface {
	// Columns returns the result column names in selected order.
	Columns() []string
	// Next advances to the next row, returning false at the end of the
	// result or on error. Cancellation of the query context surfaces here.
	Next() bool
	// Row returns the current row. Only valid after a true Next.
	Row() Row
	// Err returns the error that stopped iteration, if any.
	Err() error
	// Close releases pinned pages and the read snapshot early. Closing an
	// exhausted cursor is a no-op.
	Close() error
}

// Database is one open handle onto a store. All methods are safe for
// concurrent use; writes serialize on the handle's single writer lock.
type Database interface {
	Query(ctx context.Context, sql string) (Cursor, error)
	Exec(ctx context.Context, sql string) error
	Version() (int64, error)
	SetVersion(v int64) error
	Path() string
	IsOpen() bool
	ReadOnly() bool
	SetLocale(collationKey string) error
	Close() error
}

// OpenRequest carries everything fixed at open time. An empty Path selects
// an ephemeral in-memory store destroyed on close.
type OpenRequest struct {
	Path       string
	Passphrase string
	Flags      OpenFlags
}

// Engine opens and removes databases. An Engine instance is threaded
// explicitly through the services; there is no process-wide table.
type Engine interface {
	Open(req OpenRequest) (Database, error)
	// Delete removes the main file plus its WAL sibling. Idempotent:
	// returns false when nothing existed.
	Delete(path string) (bool, error)
	// Resolve maps a request path to the path a handle opened with it
	// reports, anchoring relative paths under the data directory.
	Resolve(path string) string
}

// CommitEvent summarizes one durably committed transaction.
type CommitEvent struct {
	Database  string   `json:"database"`
	TxID      uint64   `json:"tx_id"`
	Tables    []string `json:"tables,omitempty"`
	Frames    int      `json:"frames"`
	Timestamp int64    `json:"timestamp"`
}

// CommitNotifier receives commit events after they are durable. Delivery is
// best effort and must never block or fail the commit itself.
type CommitNotifier interface {
	NotifyCommit(event CommitEvent)
}
