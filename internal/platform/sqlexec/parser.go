package sqlexec

import (
	"CipherDB/internal/domain"
	"strconv"
	"strings"
)

// Recursive-descent parser for the supported SQL subset:
//
//	CREATE TABLE name (col TYPE [PRIMARY KEY] [NOT NULL], …)
//	DROP TABLE name
//	INSERT [OR mode] INTO name [(cols)] VALUES (…), (…)
//	SELECT *|cols FROM name [WHERE expr] [ORDER BY col [ASC|DESC]] [LIMIT n]
//	UPDATE [OR mode] name SET col = expr, … [WHERE expr]
//	DELETE FROM name [WHERE expr]
//	BEGIN | COMMIT | ROLLBACK
type parser struct {
	tokens []token
	idx    int
}

// parse turns one SQL statement into its AST. All failures are
// SyntaxError values carrying the offending token position.
func parse(input string) (statement, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	stmt, err := p.statement()
	if err != nil {
		return nil, err
	}
	if p.peek().symbol(";") {
		p.next()
	}
	if p.peek().typ != tokEOF {
		return nil, p.errorf("unexpected trailing input")
	}
	return stmt, nil
}

func (p *parser) peek() token {
	return p.tokens[p.idx]
}

func (p *parser) next() token {
	t := p.tokens[p.idx]
	if p.idx < len(p.tokens)-1 {
		p.idx++
	}
	return t
}

func (p *parser) errorf(detail string) error {
	t := p.peek()
	return &domain.SyntaxError{Position: t.pos, Token: t.text, Detail: detail}
}

func (p *parser) expectKeyword(word string) error {
	if !p.peek().keyword(word) {
		return p.errorf("expected " + word)
	}
	p.next()
	return nil
}

func (p *parser) expectSymbol(s string) error {
	if !p.peek().symbol(s) {
		return p.errorf("expected " + strconv.Quote(s))
	}
	p.next()
	return nil
}

func (p *parser) identifier(what string) (string, error) {
	t := p.peek()
	if t.typ != tokIdent {
		return "", p.errorf("expected " + what)
	}
	p.next()
	return t.text, nil
}

func (p *parser) statement() (statement, error) {
	t := p.peek()
	switch {
	case t.keyword("CREATE"):
		return p.createTable()
	case t.keyword("DROP"):
		return p.dropTable()
	case t.keyword("INSERT"):
		return p.insert()
	case t.keyword("SELECT"):
		return p.selectStatement()
	case t.keyword("UPDATE"):
		return p.update()
	case t.keyword("DELETE"):
		return p.deleteStatement()
	case t.keyword("BEGIN"):
		p.next()
		// Optional TRANSACTION noise word.
		if p.peek().keyword("TRANSACTION") {
			p.next()
		}
		return beginStmt{}, nil
	case t.keyword("COMMIT"):
		p.next()
		return commitStmt{}, nil
	case t.keyword("ROLLBACK"):
		p.next()
		return rollbackStmt{}, nil
	}
	return nil, p.errorf("expected a statement")
}

func (p *parser) createTable() (statement, error) {
	p.next()
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []domain.Column
	for {
		col, err := p.columnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.peek().symbol(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return createTableStmt{Name: name, Columns: cols}, nil
}

func (p *parser) columnDef() (domain.Column, error) {
	var col domain.Column
	name, err := p.identifier("column name")
	if err != nil {
		return col, err
	}
	col.Name = name
	typeTok := p.peek()
	if typeTok.typ != tokIdent {
		return col, p.errorf("expected column type")
	}
	switch strings.ToUpper(typeTok.text) {
	case "INT", "INTEGER", "BIGINT":
		col.Type = domain.TypeInteger
	case "REAL", "FLOAT", "DOUBLE":
		col.Type = domain.TypeReal
	case "TEXT", "VARCHAR", "STRING":
		col.Type = domain.TypeText
	case "BLOB":
		col.Type = domain.TypeBlob
	default:
		return col, p.errorf("unknown column type")
	}
	p.next()
	for {
		switch {
		case p.peek().keyword("PRIMARY"):
			p.next()
			if err := p.expectKeyword("KEY"); err != nil {
				return col, err
			}
			col.PrimaryKey = true
		case p.peek().keyword("NOT"):
			p.next()
			if err := p.expectKeyword("NULL"); err != nil {
				return col, err
			}
			col.NotNull = true
		default:
			return col, nil
		}
	}
}

func (p *parser) dropTable() (statement, error) {
	p.next()
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	return dropTableStmt{Name: name}, nil
}

// conflictClause parses an optional "OR <mode>" right after the verb.
func (p *parser) conflictClause() (domain.ConflictMode, error) {
	if !p.peek().keyword("OR") {
		return domain.ConflictAbort, nil
	}
	p.next()
	t := p.peek()
	if t.typ != tokIdent {
		return domain.ConflictAbort, p.errorf("expected conflict mode")
	}
	mode, ok := domain.ParseConflictMode(t.text)
	if !ok {
		return domain.ConflictAbort, p.errorf("unknown conflict mode")
	}
	p.next()
	return mode, nil
}

func (p *parser) insert() (statement, error) {
	p.next()
	mode, err := p.conflictClause()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := insertStmt{Table: table, Conflict: mode}
	if p.peek().symbol("(") {
		p.next()
		for {
			col, err := p.identifier("column name")
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
			if p.peek().symbol(",") {
				p.next()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var row []expr
		for {
			e, err := p.expression()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.peek().symbol(",") {
				p.next()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if p.peek().symbol(",") {
			p.next()
			continue
		}
		break
	}
	return stmt, nil
}

func (p *parser) selectStatement() (statement, error) {
	p.next()
	stmt := selectStmt{}
	if p.peek().symbol("*") {
		p.next()
		stmt.Star = true
	} else {
		for {
			t := p.peek()
			name, err := p.identifier("column name")
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, columnRef{Name: name, Pos: t.pos})
			if p.peek().symbol(",") {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt.Table = table
	if p.peek().keyword("WHERE") {
		p.next()
		where, err := p.expression()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	if p.peek().keyword("ORDER") {
		p.next()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		ob := &orderBy{Column: col}
		if p.peek().keyword("DESC") {
			p.next()
			ob.Desc = true
		} else if p.peek().keyword("ASC") {
			p.next()
		}
		stmt.Order = ob
	}
	if p.peek().keyword("LIMIT") {
		p.next()
		t := p.peek()
		if t.typ != tokNumber {
			return nil, p.errorf("expected limit count")
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil || n < 0 {
			return nil, p.errorf("invalid limit count")
		}
		p.next()
		stmt.Limit = &n
	}
	return stmt, nil
}

func (p *parser) update() (statement, error) {
	p.next()
	mode, err := p.conflictClause()
	if err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	stmt := updateStmt{Table: table, Conflict: mode}
	for {
		t := p.peek()
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		stmt.Set = append(stmt.Set, assignment{Column: col, Pos: t.pos, Value: value})
		if p.peek().symbol(",") {
			p.next()
			continue
		}
		break
	}
	if p.peek().keyword("WHERE") {
		p.next()
		where, err := p.expression()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *parser) deleteStatement() (statement, error) {
	p.next()
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := deleteStmt{Table: table}
	if p.peek().keyword("WHERE") {
		p.next()
		where, err := p.expression()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

// expression  := andExpr (OR andExpr)*
// andExpr     := notExpr (AND notExpr)*
// notExpr     := NOT notExpr | comparison
// comparison  := operand ((=|!=|<>|<|<=|>|>=) operand | IS [NOT] NULL)?
// operand     := literal | column | '(' expression ')'
func (p *parser) expression() (expr, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().keyword("OR") {
		p.next()
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) andExpr() (expr, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().keyword("AND") {
		p.next()
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) notExpr() (expr, error) {
	if p.peek().keyword("NOT") {
		p.next()
		x, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return notExpr{X: x}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.typ == tokSymbol {
		switch t.text {
		case "=", "!=", "<>", "<", "<=", ">", ">=":
			p.next()
			right, err := p.operand()
			if err != nil {
				return nil, err
			}
			op := t.text
			if op == "<>" {
				op = "!="
			}
			return binaryExpr{Op: op, Left: left, Right: right}, nil
		}
	}
	if t.keyword("IS") {
		p.next()
		negate := false
		if p.peek().keyword("NOT") {
			p.next()
			negate = true
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return isNullExpr{X: left, Negate: negate}, nil
	}
	return left, nil
}

func (p *parser) operand() (expr, error) {
	t := p.peek()
	switch {
	case t.symbol("("):
		p.next()
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return e, nil
	case t.typ == tokNumber:
		p.next()
		if strings.ContainsRune(t.text, '.') {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, &domain.SyntaxError{Position: t.pos, Token: t.text, Detail: "invalid number"}
			}
			return literal{Value: domain.RealValue(f)}, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, &domain.SyntaxError{Position: t.pos, Token: t.text, Detail: "integer out of range"}
		}
		return literal{Value: domain.IntegerValue(n)}, nil
	case t.typ == tokString:
		p.next()
		return literal{Value: domain.TextValue(t.text)}, nil
	case t.typ == tokBlob:
		p.next()
		raw, err := decodeHexLiteral(t)
		if err != nil {
			return nil, err
		}
		return literal{Value: domain.BlobValue(raw)}, nil
	case t.keyword("NULL"):
		p.next()
		return literal{Value: domain.NullValue()}, nil
	case t.keyword("TRUE"):
		p.next()
		return literal{Value: domain.IntegerValue(1)}, nil
	case t.keyword("FALSE"):
		p.next()
		return literal{Value: domain.IntegerValue(0)}, nil
	case t.typ == tokIdent:
		p.next()
		return columnRef{Name: t.text, Pos: t.pos}, nil
	}
	return nil, p.errorf("expected an expression")
}
