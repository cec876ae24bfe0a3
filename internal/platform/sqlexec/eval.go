package sqlexec

import (
	"CipherDB/internal/domain"
	"encoding/hex"
)

func decodeHexLiteral(t token) ([]byte, error) {
	raw, err := hex.DecodeString(t.text)
	if err != nil {
		return nil, &domain.SyntaxError{Position: t.pos, Token: t.text, Detail: "invalid blob literal"}
	}
	return raw, nil
}

// evalContext resolves column references against the current row. A nil
// row means the expression must be constant (INSERT values).
type evalContext struct {
	schema  domain.TableSchema
	row     *domain.Row
	collate domain.Collator
}

func (c evalContext) eval(e expr) (domain.Value, error) {
	switch node := e.(type) {
	case literal:
		return node.Value, nil
	case columnRef:
		if c.row == nil {
			return domain.Value{}, &domain.SchemaError{
				Table:  c.schema.Name,
				Column: node.Name,
				Detail: "column reference not allowed here",
			}
		}
		idx := c.schema.ColumnIndex(node.Name)
		if idx < 0 {
			return domain.Value{}, &domain.SchemaError{
				Table:  c.schema.Name,
				Column: node.Name,
				Detail: "no such column",
			}
		}
		return c.row.Values[idx], nil
	case binaryExpr:
		return c.evalBinary(node)
	case notExpr:
		v, err := c.eval(node.X)
		if err != nil {
			return domain.Value{}, err
		}
		if v.IsNull() {
			return domain.NullValue(), nil
		}
		return boolValue(!truthy(v)), nil
	case isNullExpr:
		v, err := c.eval(node.X)
		if err != nil {
			return domain.Value{}, err
		}
		return boolValue(v.IsNull() != node.Negate), nil
	}
	return domain.Value{}, &domain.SchemaError{Detail: "unsupported expression"}
}

func (c evalContext) evalBinary(node binaryExpr) (domain.Value, error) {
	left, err := c.eval(node.Left)
	if err != nil {
		return domain.Value{}, err
	}
	right, err := c.eval(node.Right)
	if err != nil {
		return domain.Value{}, err
	}
	switch node.Op {
	case "AND":
		return boolValue(truthy(left) && truthy(right)), nil
	case "OR":
		return boolValue(truthy(left) || truthy(right)), nil
	}
	// Comparisons against NULL are NULL, which filters as false.
	if left.IsNull() || right.IsNull() {
		return domain.NullValue(), nil
	}
	cmp := left.Compare(right, c.collate)
	switch node.Op {
	case "=":
		return boolValue(cmp == 0), nil
	case "!=":
		return boolValue(cmp != 0), nil
	case "<":
		return boolValue(cmp < 0), nil
	case "<=":
		return boolValue(cmp <= 0), nil
	case ">":
		return boolValue(cmp > 0), nil
	case ">=":
		return boolValue(cmp >= 0), nil
	}
	return domain.Value{}, &domain.SchemaError{Detail: "unsupported operator " + node.Op}
}

// matches evaluates a WHERE expression for one row. A nil expression
// matches everything.
func (c evalContext) matches(e expr) (bool, error) {
	if e == nil {
		return true, nil
	}
	v, err := c.eval(e)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func boolValue(b bool) domain.Value {
	if b {
		return domain.IntegerValue(1)
	}
	return domain.IntegerValue(0)
}

func truthy(v domain.Value) bool {
	switch v.Type {
	case domain.TypeInteger:
		return v.Int != 0
	case domain.TypeReal:
		return v.Real != 0
	}
	return false
}

// coerce checks a value against a column's declared type, widening
// integers to reals where needed. NULL passes unless NOT NULL forbids it.
func coerce(table string, col domain.Column, v domain.Value) (domain.Value, error) {
	if v.IsNull() {
		if col.NotNull {
			return v, &domain.ConstraintViolation{
				Table:  table,
				Column: col.Name,
				Detail: "NOT NULL constraint failed",
			}
		}
		return v, nil
	}
	switch col.Type {
	case domain.TypeInteger:
		if v.Type == domain.TypeInteger {
			return v, nil
		}
	case domain.TypeReal:
		if v.Type == domain.TypeReal {
			return v, nil
		}
		if v.Type == domain.TypeInteger {
			return domain.RealValue(float64(v.Int)), nil
		}
	case domain.TypeText:
		if v.Type == domain.TypeText {
			return v, nil
		}
	case domain.TypeBlob:
		if v.Type == domain.TypeBlob {
			return v, nil
		}
	}
	return v, &domain.SchemaError{
		Table:  table,
		Column: col.Name,
		Detail: "type mismatch: " + v.Type.String() + " value for " + col.Type.String() + " column",
	}
}
