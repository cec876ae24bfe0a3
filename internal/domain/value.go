package domain

import (
	"bytes"
	"fmt"
	"strconv"
)

type ValueType byte

const (
	TypeNull ValueType = iota
	TypeInteger
	TypeReal
	TypeText
	TypeBlob
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	}
	return "UNKNOWN"
}

// Value is one typed cell of a row. Only the field matching Type is meaningful.
type Value struct {
	Type ValueType
	Int  int64
	Real float64
	Text string
	Blob []byte
}

func NullValue() Value {
	return Value{Type: TypeNull}
}

func IntegerValue(v int64) Value {
	return Value{Type: TypeInteger, Int: v}
}

func RealValue(v float64) Value {
	return Value{Type: TypeReal, Real: v}
}

func TextValue(v string) Value {
	return Value{Type: TypeText, Text: v}
}

func BlobValue(v []byte) Value {
	return Value{Type: TypeBlob, Blob: v}
}

func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// Native returns the value as a plain Go type, suitable for JSON responses.
func (v Value) Native() any {
	switch v.Type {
	case TypeInteger:
		return v.Int
	case TypeReal:
		return v.Real
	case TypeText:
		return v.Text
	case TypeBlob:
		return v.Blob
	}
	return nil
}

func (v Value) String() string {
	switch v.Type {
	case TypeInteger:
		return strconv.FormatInt(v.Int, 10)
	case TypeReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case TypeText:
		return v.Text
	case TypeBlob:
		return fmt.Sprintf("x'%x'", v.Blob)
	}
	return "NULL"
}

// asReal widens integers so INTEGER and REAL compare numerically.
func (v Value) asReal() float64 {
	if v.Type == TypeInteger {
		return float64(v.Int)
	}
	return v.Real
}

// Compare orders two values. NULL sorts before everything, then numerics,
// then text, then blobs. Text uses the collator when one is given,
// bytewise otherwise.
func (v Value) Compare(other Value, collate Collator) int {
	if v.Type == TypeNull || other.Type == TypeNull {
		return int(boolToInt(other.Type == TypeNull)) - int(boolToInt(v.Type == TypeNull))
	}
	vn := v.Type == TypeInteger || v.Type == TypeReal
	on := other.Type == TypeInteger || other.Type == TypeReal
	switch {
	case vn && on:
		if v.Type == TypeInteger && other.Type == TypeInteger {
			return compareInt64(v.Int, other.Int)
		}
		a, b := v.asReal(), other.asReal()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case vn:
		return -1
	case on:
		return 1
	}
	if v.Type == TypeText && other.Type == TypeText {
		if collate != nil {
			return collate(v.Text, other.Text)
		}
		return bytes.Compare([]byte(v.Text), []byte(other.Text))
	}
	if v.Type == TypeText {
		return -1
	}
	if other.Type == TypeText {
		return 1
	}
	return bytes.Compare(v.Blob, other.Blob)
}

// Equal is Compare == 0 with the same collator, except NULL never equals NULL.
func (v Value) Equal(other Value, collate Collator) bool {
	if v.Type == TypeNull || other.Type == TypeNull {
		return false
	}
	return v.Compare(other, collate) == 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolToInt(b bool) byte {
	if b {
		return 1
	}
	return 0
}
