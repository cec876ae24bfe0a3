package sqlexec

import (
	"errors"

	"CipherDB/internal/domain"
	"CipherDB/internal/platform/repository/btreestore"
)

// stmtOutcome tells the session how a failed statement left the
// transaction.
type stmtOutcome int

const (
	stmtOK stmtOutcome = iota
	// statement failed and its changes were rolled back; the enclosing
	// transaction is still usable.
	stmtFailed
	// statement failed but its earlier row changes were kept (OR FAIL).
	stmtFailedKeep
	// statement failed and the whole transaction must be rolled back
	// (OR ROLLBACK).
	stmtRollbackTx
)

// executor applies one parsed write statement inside a transaction.
type executor struct {
	tx      *btreestore.Tx
	collate domain.Collator
}

// run executes a single write statement under a savepoint, so a failing
// statement never leaves half its changes behind unless its conflict
// policy says to.
func (e *executor) run(s statement) (stmtOutcome, error) {
	sp := e.tx.Savepoint()
	var err error
	switch st := s.(type) {
	case createTableStmt:
		err = e.createTable(st)
	case dropTableStmt:
		err = e.tx.DropTable(st.Name)
	case insertStmt:
		err = e.insert(st)
	case updateStmt:
		err = e.update(st)
	case deleteStmt:
		err = e.delete(st)
	default:
		err = &domain.SchemaError{Detail: "statement cannot be executed here"}
	}
	if err == nil {
		return stmtOK, nil
	}
	var cv *domain.ConstraintViolation
	if errors.As(err, &cv) {
		switch cv.Mode {
		case domain.ConflictFail:
			return stmtFailedKeep, err
		case domain.ConflictRollback:
			return stmtRollbackTx, err
		}
	}
	e.tx.RollbackTo(sp)
	return stmtFailed, err
}

func (e *executor) createTable(st createTableStmt) error {
	seen := make(map[string]struct{}, len(st.Columns))
	primaries := 0
	for _, col := range st.Columns {
		key := normalizeName(col.Name)
		if _, dup := seen[key]; dup {
			return &domain.SchemaError{Table: st.Name, Column: col.Name, Detail: "duplicate column name"}
		}
		seen[key] = struct{}{}
		if col.PrimaryKey {
			primaries++
			if col.Type != domain.TypeInteger {
				return &domain.SchemaError{
					Table:  st.Name,
					Column: col.Name,
					Detail: "only INTEGER columns can be PRIMARY KEY",
				}
			}
		}
	}
	if primaries > 1 {
		return &domain.SchemaError{Table: st.Name, Detail: "more than one PRIMARY KEY column"}
	}
	return e.tx.CreateTable(domain.TableSchema{Name: st.Name, Columns: st.Columns})
}

// resolveTargets maps the INSERT column list onto schema positions.
// An empty list means every column in declaration order.
func resolveTargets(schema domain.TableSchema, names []string) ([]int, error) {
	if len(names) == 0 {
		targets := make([]int, len(schema.Columns))
		for i := range targets {
			targets[i] = i
		}
		return targets, nil
	}
	targets := make([]int, len(names))
	seen := make(map[int]struct{}, len(names))
	for i, name := range names {
		idx := schema.ColumnIndex(name)
		if idx < 0 {
			return nil, &domain.SchemaError{Table: schema.Name, Column: name, Detail: "no such column"}
		}
		if _, dup := seen[idx]; dup {
			return nil, &domain.SchemaError{Table: schema.Name, Column: name, Detail: "column named twice"}
		}
		seen[idx] = struct{}{}
		targets[i] = idx
	}
	return targets, nil
}

func (e *executor) insert(st insertStmt) error {
	table, err := e.tx.Table(st.Table)
	if err != nil {
		return err
	}
	schema := table.Schema()
	targets, err := resolveTargets(schema, st.Columns)
	if err != nil {
		return err
	}
	for _, rowExprs := range st.Rows {
		if err := e.insertRow(table, schema, targets, rowExprs, st.Conflict); err != nil {
			var cv *domain.ConstraintViolation
			if st.Conflict == domain.ConflictIgnore && errors.As(err, &cv) {
				continue
			}
			return err
		}
	}
	return nil
}

func (e *executor) insertRow(table *btreestore.Table, schema domain.TableSchema,
	targets []int, rowExprs []expr, mode domain.ConflictMode) error {
	if len(rowExprs) != len(targets) {
		return &domain.SchemaError{
			Table:  schema.Name,
			Detail: "value count does not match column count",
		}
	}
	ec := evalContext{schema: schema, collate: e.collate}
	values := make([]domain.Value, len(schema.Columns))
	for i, ex := range rowExprs {
		v, err := ec.eval(ex)
		if err != nil {
			return err
		}
		values[targets[i]] = v
	}
	pkIdx := schema.RowIDColumn()
	rowID, err := chooseRowID(table, schema, values, pkIdx)
	if err != nil {
		return err
	}
	for ci, col := range schema.Columns {
		if ci == pkIdx {
			continue
		}
		coerced, err := coerce(schema.Name, col, values[ci])
		if err != nil {
			return tagConflict(err, mode)
		}
		values[ci] = coerced
	}
	existed, err := table.Insert(rowID, values, mode == domain.ConflictReplace)
	if err != nil {
		return err
	}
	if existed && mode != domain.ConflictReplace {
		return &domain.ConstraintViolation{Table: schema.Name, RowID: rowID, Mode: mode}
	}
	return nil
}

// chooseRowID picks the key for a new row: the explicit integer primary
// key value when one is given, the next free id otherwise. The primary
// key column is backfilled so reads see the assigned id.
func chooseRowID(table *btreestore.Table, schema domain.TableSchema,
	values []domain.Value, pkIdx int) (int64, error) {
	if pkIdx >= 0 && !values[pkIdx].IsNull() {
		v := values[pkIdx]
		if v.Type != domain.TypeInteger {
			return 0, &domain.SchemaError{
				Table:  schema.Name,
				Column: schema.Columns[pkIdx].Name,
				Detail: "primary key value must be an integer",
			}
		}
		return v.Int, nil
	}
	max, ok, err := table.MaxRowID()
	if err != nil {
		return 0, err
	}
	rowID := int64(1)
	if ok {
		rowID = max + 1
	}
	if pkIdx >= 0 {
		values[pkIdx] = domain.IntegerValue(rowID)
	}
	return rowID, nil
}

// tagConflict stamps the statement's conflict mode onto a constraint
// violation so the session applies the right recovery.
func tagConflict(err error, mode domain.ConflictMode) error {
	var cv *domain.ConstraintViolation
	if errors.As(err, &cv) {
		cv.Mode = mode
	}
	return err
}

// collectRows materializes the rows a plan selects before mutation, so
// UPDATE and DELETE never walk a tree they are changing.
func (e *executor) collectRows(table *btreestore.Table, schema domain.TableSchema,
	plan scanPlan) ([]domain.Row, error) {
	if plan.empty {
		return nil, nil
	}
	if plan.point {
		row, ok, err := table.Lookup(plan.pointKey)
		if err != nil || !ok {
			return nil, err
		}
		match, err := (evalContext{schema: schema, row: &row, collate: e.collate}).matches(plan.residual)
		if err != nil || !match {
			return nil, err
		}
		return []domain.Row{row}, nil
	}
	it, err := table.SeekGE(plan.startKey())
	if err != nil {
		return nil, err
	}
	var rows []domain.Row
	for {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok || plan.pastEnd(row.RowID) {
			return rows, nil
		}
		match, err := (evalContext{schema: schema, row: &row, collate: e.collate}).matches(plan.residual)
		if err != nil {
			return nil, err
		}
		if match {
			rows = append(rows, row)
		}
	}
}

func (e *executor) update(st updateStmt) error {
	table, err := e.tx.Table(st.Table)
	if err != nil {
		return err
	}
	schema := table.Schema()
	for i, a := range st.Set {
		if schema.ColumnIndex(a.Column) < 0 {
			return &domain.SyntaxError{Position: a.Pos, Token: a.Column, Detail: "no such column"}
		}
		for _, prev := range st.Set[:i] {
			if normalizeName(prev.Column) == normalizeName(a.Column) {
				return &domain.SchemaError{Table: schema.Name, Column: a.Column, Detail: "column assigned twice"}
			}
		}
	}
	rows, err := e.collectRows(table, schema, planScan(schema, st.Where))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := e.updateRow(table, schema, row, st.Set, st.Conflict); err != nil {
			var cv *domain.ConstraintViolation
			if st.Conflict == domain.ConflictIgnore && errors.As(err, &cv) {
				continue
			}
			return err
		}
	}
	return nil
}

func (e *executor) updateRow(table *btreestore.Table, schema domain.TableSchema,
	row domain.Row, set []assignment, mode domain.ConflictMode) error {
	next := row.Copy()
	ec := evalContext{schema: schema, row: &row, collate: e.collate}
	pkIdx := schema.RowIDColumn()
	for _, a := range set {
		idx := schema.ColumnIndex(a.Column)
		v, err := ec.eval(a.Value)
		if err != nil {
			return err
		}
		coerced, err := coerce(schema.Name, schema.Columns[idx], v)
		if err != nil {
			return tagConflict(err, mode)
		}
		next.Values[idx] = coerced
	}
	newID := row.RowID
	if pkIdx >= 0 {
		v := next.Values[pkIdx]
		if v.IsNull() || v.Type != domain.TypeInteger {
			return &domain.SchemaError{
				Table:  schema.Name,
				Column: schema.Columns[pkIdx].Name,
				Detail: "primary key value must be an integer",
			}
		}
		newID = v.Int
	}
	if newID == row.RowID {
		_, err := table.Insert(newID, next.Values, true)
		return err
	}
	// The row id changed: the row moves, so the target key must be
	// free or the conflict policy must allow taking it.
	_, occupied, err := table.Lookup(newID)
	if err != nil {
		return err
	}
	if occupied && mode != domain.ConflictReplace {
		return &domain.ConstraintViolation{Table: schema.Name, RowID: newID, Mode: mode}
	}
	if _, err := table.Delete(row.RowID); err != nil {
		return err
	}
	_, err = table.Insert(newID, next.Values, true)
	return err
}

func (e *executor) delete(st deleteStmt) error {
	table, err := e.tx.Table(st.Table)
	if err != nil {
		return err
	}
	schema := table.Schema()
	rows, err := e.collectRows(table, schema, planScan(schema, st.Where))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := table.Delete(row.RowID); err != nil {
			return err
		}
	}
	return nil
}
