package domain

import (
	"fmt"
	"strings"
)

// ConflictMode selects the per-statement policy applied when an insert or
// update collides with an existing row id.
type ConflictMode int

const (
	// ConflictAbort fails the statement and undoes its changes. Default.
	ConflictAbort ConflictMode = iota
	// ConflictFail fails the statement but keeps rows it already wrote.
	ConflictFail
	// ConflictIgnore skips the conflicting row and continues.
	ConflictIgnore
	// ConflictReplace overwrites the existing row.
	ConflictReplace
	// ConflictRollback aborts the whole enclosing transaction.
	ConflictRollback
)

func (m ConflictMode) String() string {
	switch m {
	case ConflictAbort:
		return "ABORT"
	case ConflictFail:
		return "FAIL"
	case ConflictIgnore:
		return "IGNORE"
	case ConflictReplace:
		return "REPLACE"
	case ConflictRollback:
		return "ROLLBACK"
	}
	return fmt.Sprintf("ConflictMode(%d)", int(m))
}

// ParseConflictMode maps the keyword after "OR" to its mode.
func ParseConflictMode(word string) (ConflictMode, bool) {
	switch strings.ToUpper(word) {
	case "ABORT":
		return ConflictAbort, true
	case "FAIL":
		return ConflictFail, true
	case "IGNORE":
		return ConflictIgnore, true
	case "REPLACE":
		return ConflictReplace, true
	case "ROLLBACK":
		return ConflictRollback, true
	}
	return ConflictAbort, false
}
