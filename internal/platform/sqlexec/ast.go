package sqlexec

import "CipherDB/internal/domain"

type statement interface {
	stmt()
}

type createTableStmt struct {
	Name    string
	Columns []domain.Column
}

type dropTableStmt struct {
	Name string
}

type insertStmt struct {
	Table    string
	Columns  []string // empty means schema order
	Rows     [][]expr
	Conflict domain.ConflictMode
}

type orderBy struct {
	Column string
	Desc   bool
}

type selectStmt struct {
	Star    bool
	Columns []columnRef
	Table   string
	Where   expr
	Order   *orderBy
	Limit   *int64
}

type assignment struct {
	Column string
	Pos    int
	Value  expr
}

type updateStmt struct {
	Table    string
	Set      []assignment
	Where    expr
	Conflict domain.ConflictMode
}

type deleteStmt struct {
	Table string
	Where expr
}

type beginStmt struct{}
type commitStmt struct{}
type rollbackStmt struct{}

func (createTableStmt) stmt() {}
func (dropTableStmt) stmt()   {}
func (insertStmt) stmt()      {}
func (selectStmt) stmt()      {}
func (updateStmt) stmt()      {}
func (deleteStmt) stmt()      {}
func (beginStmt) stmt()       {}
func (commitStmt) stmt()      {}
func (rollbackStmt) stmt()    {}

type expr interface {
	expr()
}

type literal struct {
	Value domain.Value
}

type columnRef struct {
	Name string
	Pos  int
}

// binaryExpr covers comparisons and AND/OR. Op is the upper-case keyword
// or the symbol itself.
type binaryExpr struct {
	Op    string
	Left  expr
	Right expr
}

type notExpr struct {
	X expr
}

type isNullExpr struct {
	X      expr
	Negate bool
}

func (literal) expr()    {}
func (columnRef) expr()  {}
func (binaryExpr) expr() {}
func (notExpr) expr()    {}
func (isNullExpr) expr() {}
