package domain

// Row is one stored record: its row id plus one value per schema column.
type Row struct {
	RowID  int64
	Values []Value
}

func NewRow(rowID int64, values ...Value) Row {
	return Row{RowID: rowID, Values: values}
}

func (r Row) Copy() Row {
	values := make([]Value, len(r.Values))
	copy(values, r.Values)
	return Row{RowID: r.RowID, Values: values}
}

// Native maps every cell to its plain Go representation, in column order.
func (r Row) Native() []any {
	out := make([]any, len(r.Values))
	for i, v := range r.Values {
		out[i] = v.Native()
	}
	return out
}
