package domain

import "strings"

type Column struct {
	Name       string    `json:"name"`
	Type       ValueType `json:"type"`
	NotNull    bool      `json:"not_null"`
	PrimaryKey bool      `json:"primary_key"`
}

// TableSchema describes one relation. RootPage points at the table's
// B+tree root inside the page store.
type TableSchema struct {
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
	RootPage uint64   `json:"root_page"`
}

// ColumnIndex returns the position of the named column, or -1. Names
// compare case-insensitively.
func (s TableSchema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// RowIDColumn returns the index of the INTEGER PRIMARY KEY column, or -1
// when the table has only the implicit row id.
func (s TableSchema) RowIDColumn() int {
	for i, c := range s.Columns {
		if c.PrimaryKey && c.Type == TypeInteger {
			return i
		}
	}
	return -1
}

// ColumnNames returns the declared column names in order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
