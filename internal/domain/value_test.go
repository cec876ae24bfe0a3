package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_CompareNumericWidening(t *testing.T) {
	assert.Equal(t, 0, IntegerValue(3).Compare(RealValue(3.0), nil))
	assert.Equal(t, -1, IntegerValue(2).Compare(RealValue(2.5), nil))
	assert.Equal(t, 1, RealValue(7.1).Compare(IntegerValue(7), nil))
}

func TestValue_CompareNullSortsFirst(t *testing.T) {
	assert.Equal(t, -1, NullValue().Compare(IntegerValue(-100), nil))
	assert.Equal(t, 1, TextValue("").Compare(NullValue(), nil))
	assert.Equal(t, 0, NullValue().Compare(NullValue(), nil))
}

func TestValue_CompareTypeOrdering(t *testing.T) {
	// numeric < text < blob
	assert.Equal(t, -1, IntegerValue(999).Compare(TextValue("a"), nil))
	assert.Equal(t, -1, TextValue("zzz").Compare(BlobValue([]byte{0}), nil))
	assert.Equal(t, 1, BlobValue([]byte{1}).Compare(RealValue(1e9), nil))
}

func TestValue_CompareTextWithCollator(t *testing.T) {
	registry := NewCollatorRegistry()
	nocase, ok := registry.Lookup("nocase")
	assert.True(t, ok)

	assert.Equal(t, 0, TextValue("Hello").Compare(TextValue("hello"), nocase))
	if TextValue("Hello").Compare(TextValue("hello"), nil) == 0 {
		t.Errorf("Expected bytewise comparison to distinguish case")
	}
}

func TestValue_EqualNullNeverEqual(t *testing.T) {
	assert.False(t, NullValue().Equal(NullValue(), nil))
	assert.False(t, NullValue().Equal(IntegerValue(0), nil))
	assert.True(t, IntegerValue(5).Equal(IntegerValue(5), nil))
}

func TestRow_CopyIsIndependent(t *testing.T) {
	row := NewRow(1, IntegerValue(1), TextValue("a"))
	dup := row.Copy()
	dup.Values[1] = TextValue("b")
	assert.Equal(t, "a", row.Values[1].Text)
}

func TestTableSchema_RowIDColumn(t *testing.T) {
	schema := TableSchema{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: TypeInteger, PrimaryKey: true},
			{Name: "name", Type: TypeText},
		},
	}
	assert.Equal(t, 0, schema.RowIDColumn())
	assert.Equal(t, 1, schema.ColumnIndex("NAME"))

	noPK := TableSchema{
		Name:    "logs",
		Columns: []Column{{Name: "msg", Type: TypeText}},
	}
	assert.Equal(t, -1, noPK.RowIDColumn())
}

func TestParseConflictMode(t *testing.T) {
	mode, ok := ParseConflictMode("replace")
	assert.True(t, ok)
	assert.Equal(t, ConflictReplace, mode)

	_, ok = ParseConflictMode("merge")
	assert.False(t, ok)
}

func TestOpenFlags(t *testing.T) {
	flags := CreateIfNecessary | EnableWriteAheadLogging
	assert.True(t, flags.Create())
	assert.True(t, flags.WALEnabled())
	assert.False(t, flags.ReadOnly())
	assert.True(t, flags.LocalizedCollators())

	assert.False(t, (flags | NoLocalizedCollators).LocalizedCollators())
}
