package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra context.
var (
	// ErrAuthFailure means the passphrase is wrong or a page failed
	// authentication. Opens must fail with this before returning any data.
	ErrAuthFailure = errors.New("authentication failure: wrong passphrase or tampered data")
	// ErrStorageFull means the backing file could not grow.
	ErrStorageFull = errors.New("storage full")
	// ErrLockTimeout means the writer lock was not acquired in time.
	// This is the only error a caller may sensibly retry.
	ErrLockTimeout = errors.New("timeout acquiring writer lock")
	// ErrHandleClosed means the operation used a closed database handle.
	ErrHandleClosed = errors.New("database handle is closed")
	// ErrReadOnly means a write was attempted on a read-only handle.
	ErrReadOnly = errors.New("database is read-only")
)

// SyntaxError reports bad SQL with the byte offset of the offending token.
type SyntaxError struct {
	Position int
	Token    string
	Detail   string
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("syntax error at offset %d: %s", e.Position, e.Detail)
	}
	return fmt.Sprintf("syntax error at offset %d near %q: %s", e.Position, e.Token, e.Detail)
}

// SchemaError reports an unknown table/column or a type mismatch.
type SchemaError struct {
	Table  string
	Column string
	Detail string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("schema error: table %q column %q: %s", e.Table, e.Column, e.Detail)
	case e.Table != "":
		return fmt.Sprintf("schema error: table %q: %s", e.Table, e.Detail)
	}
	return "schema error: " + e.Detail
}

// ConstraintViolation is raised when a conflict policy rejects a write,
// either a duplicate row id or a NOT NULL failure.
type ConstraintViolation struct {
	Table  string
	Column string
	RowID  int64
	Mode   ConflictMode
	Detail string
}

func (e *ConstraintViolation) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("constraint violation: table %q column %q: %s", e.Table, e.Column, e.Detail)
	}
	return fmt.Sprintf("constraint violation: duplicate row id %d in table %q (ON CONFLICT %s)",
		e.RowID, e.Table, e.Mode)
}

// CorruptPageError reports a checksum or auth-tag mismatch on one page.
// It is fatal for the structure containing the page, never silently retried.
type CorruptPageError struct {
	PageID uint64
	Detail string
}

func (e *CorruptPageError) Error() string {
	return fmt.Sprintf("corrupt page %d: %s", e.PageID, e.Detail)
}

// IOError wraps an underlying file-system failure.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io failure during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// WrapIO tags a file-system error with the operation that hit it.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}
