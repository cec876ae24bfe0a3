package sqlexec

import (
	"context"
	"sort"
	"strings"

	"CipherDB/internal/domain"
	"CipherDB/internal/platform/repository/btreestore"
)

// tableSource is the common read surface of a transaction and a
// snapshot.
type tableSource interface {
	Table(name string) (*btreestore.Table, error)
}

// rowCursor implements domain.Cursor. It either streams rows straight
// off a tree walk or serves a pre-materialized, sorted slice; the
// caller cannot tell which.
type rowCursor struct {
	ctx     context.Context
	columns []string
	project []int // schema index per output column, -1 for the bare rowid
	schema  domain.TableSchema
	collate domain.Collator
	plan    scanPlan
	limit   int64 // rows still allowed out, -1 when unlimited

	it   *btreestore.RowIterator
	rows []domain.Row
	pos  int

	onClose func()
	cur     domain.Row
	err     error
	done    bool
}

func (c *rowCursor) Columns() []string {
	return c.columns
}

func (c *rowCursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.fail(err)
		return false
	}
	if c.limit == 0 {
		c.finish()
		return false
	}
	row, ok := c.advance()
	if !ok {
		return false
	}
	c.cur = c.projectRow(row)
	if c.limit > 0 {
		c.limit--
	}
	return true
}

func (c *rowCursor) advance() (domain.Row, bool) {
	if c.it == nil {
		if c.pos >= len(c.rows) {
			c.finish()
			return domain.Row{}, false
		}
		row := c.rows[c.pos]
		c.pos++
		return row, true
	}
	for {
		row, ok, err := c.it.Next()
		if err != nil {
			c.fail(err)
			return domain.Row{}, false
		}
		if !ok || c.plan.pastEnd(row.RowID) {
			c.finish()
			return domain.Row{}, false
		}
		match, err := (evalContext{schema: c.schema, row: &row, collate: c.collate}).matches(c.plan.residual)
		if err != nil {
			c.fail(err)
			return domain.Row{}, false
		}
		if match {
			return row, true
		}
	}
}

func (c *rowCursor) projectRow(row domain.Row) domain.Row {
	if c.project == nil {
		return row
	}
	out := domain.Row{RowID: row.RowID, Values: make([]domain.Value, len(c.project))}
	for i, idx := range c.project {
		if idx < 0 {
			out.Values[i] = domain.IntegerValue(row.RowID)
			continue
		}
		out.Values[i] = row.Values[idx]
	}
	return out
}

func (c *rowCursor) Row() domain.Row {
	return c.cur
}

func (c *rowCursor) Err() error {
	return c.err
}

func (c *rowCursor) Close() error {
	c.finish()
	return nil
}

func (c *rowCursor) fail(err error) {
	c.err = err
	c.finish()
}

func (c *rowCursor) finish() {
	if c.done {
		return
	}
	c.done = true
	c.it = nil
	if c.onClose != nil {
		c.onClose()
		c.onClose = nil
	}
}

// resolveProjection turns the select list into output names plus schema
// positions. A nil index list means the identity projection (SELECT *).
func resolveProjection(schema domain.TableSchema, st selectStmt) ([]string, []int, error) {
	if st.Star {
		return schema.ColumnNames(), nil, nil
	}
	names := make([]string, len(st.Columns))
	project := make([]int, len(st.Columns))
	for i, ref := range st.Columns {
		idx := schema.ColumnIndex(ref.Name)
		if idx < 0 && !strings.EqualFold(ref.Name, "rowid") {
			return nil, nil, &domain.SchemaError{Table: schema.Name, Column: ref.Name, Detail: "no such column"}
		}
		names[i] = ref.Name
		project[i] = idx
	}
	return names, project, nil
}

// orderColumn resolves the ORDER BY target, -1 for the rowid.
func orderColumn(schema domain.TableSchema, ob *orderBy) (int, error) {
	if isRowIDRef(schema, ob.Column) {
		return -1, nil
	}
	idx := schema.ColumnIndex(ob.Column)
	if idx < 0 {
		return 0, &domain.SchemaError{Table: schema.Name, Column: ob.Column, Detail: "no such column"}
	}
	return idx, nil
}

// runSelect builds a cursor for one SELECT over the given source.
// onClose runs exactly once when the cursor is exhausted or closed;
// materialize forces eager evaluation, used when the source is a live
// write transaction whose pages may change under a lazy reader.
func runSelect(ctx context.Context, src tableSource, st selectStmt,
	collate domain.Collator, materialize bool, onClose func()) (domain.Cursor, error) {
	table, err := src.Table(st.Table)
	if err != nil {
		if onClose != nil {
			onClose()
		}
		return nil, err
	}
	schema := table.Schema()
	names, project, err := resolveProjection(schema, st)
	if err != nil {
		if onClose != nil {
			onClose()
		}
		return nil, err
	}
	plan := planScan(schema, st.Where)
	limit := int64(-1)
	if st.Limit != nil {
		limit = *st.Limit
	}
	cursor := &rowCursor{
		ctx:     ctx,
		columns: names,
		project: project,
		schema:  schema,
		collate: collate,
		plan:    plan,
		limit:   limit,
		onClose: onClose,
	}

	sortIdx := 0
	needSort := false
	if st.Order != nil {
		sortIdx, err = orderColumn(schema, st.Order)
		if err != nil {
			cursor.finish()
			return nil, err
		}
		// Ascending rowid order is the tree's natural order.
		needSort = sortIdx >= 0 || st.Order.Desc
	}

	switch {
	case plan.empty:
		cursor.rows = nil
	case plan.point:
		row, ok, err := table.Lookup(plan.pointKey)
		if err != nil {
			cursor.finish()
			return nil, err
		}
		if ok {
			match, err := (evalContext{schema: schema, row: &row, collate: collate}).matches(plan.residual)
			if err != nil {
				cursor.finish()
				return nil, err
			}
			if match {
				cursor.rows = []domain.Row{row}
			}
		}
	case materialize || needSort:
		it, err := table.SeekGE(plan.startKey())
		if err != nil {
			cursor.finish()
			return nil, err
		}
		cursor.it = it
		rows, err := drain(cursor)
		if err != nil {
			return nil, err
		}
		if needSort {
			sortRows(rows, sortIdx, st.Order.Desc, collate)
		}
		// drain reset the cursor; rebuild it over the slice.
		cursor.done = false
		cursor.limit = limit
		cursor.rows = rows
		cursor.pos = 0
	default:
		it, err := table.SeekGE(plan.startKey())
		if err != nil {
			cursor.finish()
			return nil, err
		}
		cursor.it = it
	}

	if cursor.it == nil && cursor.onClose != nil {
		// Nothing streams off the source anymore; release it now.
		cursor.onClose()
		cursor.onClose = nil
	}
	return cursor, nil
}

// drain pulls every unprojected matching row out of a streaming cursor.
func drain(c *rowCursor) ([]domain.Row, error) {
	var rows []domain.Row
	for {
		if err := c.ctx.Err(); err != nil {
			c.fail(err)
			return nil, err
		}
		row, ok := c.advance()
		if !ok {
			if c.err != nil {
				return nil, c.err
			}
			return rows, nil
		}
		rows = append(rows, row.Copy())
	}
}

func sortRows(rows []domain.Row, idx int, desc bool, collate domain.Collator) {
	sort.SliceStable(rows, func(i, j int) bool {
		var cmp int
		if idx < 0 {
			cmp = compareRowIDs(rows[i].RowID, rows[j].RowID)
		} else {
			cmp = rows[i].Values[idx].Compare(rows[j].Values[idx], collate)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareRowIDs(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
