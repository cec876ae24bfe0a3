package sqlexec

import (
	"math"
	"strings"

	"CipherDB/internal/domain"
)

// scanPlan describes how to walk a table for one statement. The planner
// recognizes equality and range predicates on the integer primary key
// (or the implicit rowid) and turns them into a point lookup or a
// bounded seek; everything else stays in residual and is evaluated per
// row.
type scanPlan struct {
	point    bool
	pointKey int64
	lower    int64
	hasLower bool
	upper    int64
	hasUpper bool
	residual expr
	// empty means the predicate can never match (e.g. id = 3 AND id = 5).
	empty bool
}

// normalizeName folds identifier case; column and table names compare
// case-insensitively.
func normalizeName(name string) string {
	return strings.ToLower(name)
}

// rowIDName returns the column name that aliases the rowid for a table,
// "rowid" when no INTEGER PRIMARY KEY column is declared.
func rowIDName(schema domain.TableSchema) string {
	if idx := schema.RowIDColumn(); idx >= 0 {
		return schema.Columns[idx].Name
	}
	return "rowid"
}

func isRowIDRef(schema domain.TableSchema, name string) bool {
	if strings.EqualFold(name, "rowid") {
		return true
	}
	if idx := schema.RowIDColumn(); idx >= 0 {
		return strings.EqualFold(schema.Columns[idx].Name, name)
	}
	return false
}

// planScan splits a WHERE expression into rowid bounds plus a residual
// filter. Only top-level AND conjuncts are considered; OR branches are
// left untouched in the residual.
func planScan(schema domain.TableSchema, where expr) scanPlan {
	plan := scanPlan{}
	var residual []expr
	for _, conjunct := range splitAnd(where) {
		if !plan.absorb(schema, conjunct) {
			residual = append(residual, conjunct)
		}
	}
	plan.residual = joinAnd(residual)
	if plan.hasLower && plan.hasUpper && plan.lower > plan.upper {
		plan.empty = true
	}
	if plan.point && ((plan.hasLower && plan.pointKey < plan.lower) ||
		(plan.hasUpper && plan.pointKey > plan.upper)) {
		plan.empty = true
	}
	return plan
}

func splitAnd(e expr) []expr {
	if e == nil {
		return nil
	}
	if b, ok := e.(binaryExpr); ok && b.Op == "AND" {
		return append(splitAnd(b.Left), splitAnd(b.Right)...)
	}
	return []expr{e}
}

func joinAnd(conjuncts []expr) expr {
	if len(conjuncts) == 0 {
		return nil
	}
	out := conjuncts[0]
	for _, c := range conjuncts[1:] {
		out = binaryExpr{Op: "AND", Left: out, Right: c}
	}
	return out
}

// absorb folds one conjunct into the plan's rowid bounds if it is a
// comparison between the rowid column and an integer literal. Returns
// false when the conjunct must stay in the residual.
func (p *scanPlan) absorb(schema domain.TableSchema, e expr) bool {
	b, ok := e.(binaryExpr)
	if !ok {
		return false
	}
	op := b.Op
	lit, ok := rowIDComparison(schema, b.Left, b.Right)
	if !ok {
		// Try the flipped form: 5 < id means id > 5.
		lit, ok = rowIDComparison(schema, b.Right, b.Left)
		if !ok {
			return false
		}
		op = flipOperator(op)
	}
	switch op {
	case "=":
		if p.point && p.pointKey != lit {
			p.empty = true
			return true
		}
		p.point = true
		p.pointKey = lit
	case ">":
		// No rowid exceeds the largest int64; the +1 below would wrap.
		if lit == math.MaxInt64 {
			p.empty = true
			return true
		}
		p.tightenLower(lit + 1)
	case ">=":
		p.tightenLower(lit)
	case "<":
		if lit == math.MinInt64 {
			p.empty = true
			return true
		}
		p.tightenUpper(lit - 1)
	case "<=":
		p.tightenUpper(lit)
	default:
		return false
	}
	return true
}

func rowIDComparison(schema domain.TableSchema, left, right expr) (int64, bool) {
	col, ok := left.(columnRef)
	if !ok || !isRowIDRef(schema, col.Name) {
		return 0, false
	}
	lit, ok := right.(literal)
	if !ok || lit.Value.Type != domain.TypeInteger {
		return 0, false
	}
	return lit.Value.Int, true
}

func flipOperator(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	}
	return op
}

func (p *scanPlan) tightenLower(v int64) {
	if !p.hasLower || v > p.lower {
		p.hasLower, p.lower = true, v
	}
}

func (p *scanPlan) tightenUpper(v int64) {
	if !p.hasUpper || v < p.upper {
		p.hasUpper, p.upper = true, v
	}
}

func (p scanPlan) startKey() int64 {
	if p.point {
		return p.pointKey
	}
	if p.hasLower {
		return p.lower
	}
	return minInt64Key
}

// pastEnd reports whether a key lies beyond the plan's upper bound, so
// iteration can stop early.
func (p scanPlan) pastEnd(key int64) bool {
	if p.point {
		return key > p.pointKey
	}
	return p.hasUpper && key > p.upper
}

const minInt64Key = -1 << 63
