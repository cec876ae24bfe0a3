package btreestore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	_ "github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"

	"CipherDB/internal/domain"
)

func newMemDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(domain.OpenRequest{Flags: domain.EnableWriteAheadLogging}, Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustBegin(t *testing.T, db *Database) *Tx {
	t.Helper()
	tx, err := db.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	return tx
}

func createUsersTable(t *testing.T, db *Database) {
	t.Helper()
	tx := mustBegin(t, db)
	err := tx.CreateTable(domain.TableSchema{
		Name: "users",
		Columns: []domain.Column{
			{Name: "id", Type: domain.TypeInteger, PrimaryKey: true},
			{Name: "name", Type: domain.TypeText},
		},
	})
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestTable_InsertAndLookup(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	tx := mustBegin(t, db)
	table, err := tx.Table("users")
	assert.NoError(t, err)

	existed, err := table.Insert(1, []domain.Value{domain.IntegerValue(1), domain.TextValue("ada")}, false)
	assert.NoError(t, err)
	assert.False(t, existed)

	row, ok, err := table.Lookup(1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ada", row.Values[1].Text)

	_, ok, err = table.Lookup(99)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, tx.Commit())
}

func TestTable_InsertDuplicateWithoutReplace(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	tx := mustBegin(t, db)
	table, _ := tx.Table("users")
	table.Insert(1, []domain.Value{domain.IntegerValue(1), domain.TextValue("ada")}, false)

	existed, err := table.Insert(1, []domain.Value{domain.IntegerValue(1), domain.TextValue("grace")}, false)
	assert.NoError(t, err)
	assert.True(t, existed)

	// Without replace the store is untouched.
	row, _, _ := table.Lookup(1)
	assert.Equal(t, "ada", row.Values[1].Text)

	existed, err = table.Insert(1, []domain.Value{domain.IntegerValue(1), domain.TextValue("grace")}, true)
	assert.NoError(t, err)
	assert.True(t, existed)
	row, _, _ = table.Lookup(1)
	assert.Equal(t, "grace", row.Values[1].Text)

	assert.NoError(t, tx.Commit())
}

func TestTable_ManyRowsForceSplits(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	const n = 3000
	tx := mustBegin(t, db)
	table, _ := tx.Table("users")
	for i := 1; i <= n; i++ {
		_, err := table.Insert(int64(i), []domain.Value{
			domain.IntegerValue(int64(i)),
			domain.TextValue(fmt.Sprintf("user_%05d", i)),
		}, false)
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Scan back in key order.
	snap, err := db.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead failed: %v", err)
	}
	defer snap.Release()

	table, _ = snap.Table("users")
	it, err := table.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	var prev int64
	count := 0
	for {
		row, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			break
		}
		if row.RowID <= prev {
			t.Fatalf("rows out of order: %d after %d", row.RowID, prev)
		}
		prev = row.RowID
		count++
	}
	if count != n {
		t.Errorf("Expected %d rows, got %d", n, count)
	}

	max, ok, err := table.MaxRowID()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(n), max)
}

func TestTable_SeekGE(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	tx := mustBegin(t, db)
	table, _ := tx.Table("users")
	for _, id := range []int64{10, 20, 30, 40} {
		table.Insert(id, []domain.Value{domain.IntegerValue(id), domain.TextValue("x")}, false)
	}
	tx.Commit()

	snap, _ := db.BeginRead()
	defer snap.Release()
	table, _ = snap.Table("users")

	it, err := table.SeekGE(25)
	assert.NoError(t, err)
	row, ok, err := it.Next()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(30), row.RowID)
}

func TestTable_Delete(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	tx := mustBegin(t, db)
	table, _ := tx.Table("users")
	table.Insert(1, []domain.Value{domain.IntegerValue(1), domain.TextValue("a")}, false)
	table.Insert(2, []domain.Value{domain.IntegerValue(2), domain.TextValue("b")}, false)

	removed, err := table.Delete(1)
	assert.NoError(t, err)
	assert.True(t, removed)

	removed, err = table.Delete(1)
	assert.NoError(t, err)
	assert.False(t, removed)

	_, ok, _ := table.Lookup(1)
	assert.False(t, ok)
	_, ok, _ = table.Lookup(2)
	assert.True(t, ok)

	tx.Commit()
}

func TestTable_OverflowPayload(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	big := strings.Repeat("x", 20_000)

	tx := mustBegin(t, db)
	table, _ := tx.Table("users")
	_, err := table.Insert(1, []domain.Value{domain.IntegerValue(1), domain.TextValue(big)}, false)
	if err != nil {
		t.Fatalf("Insert overflow row failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	snap, _ := db.BeginRead()
	defer snap.Release()
	table, _ = snap.Table("users")
	row, ok, err := table.Lookup(1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, big, row.Values[1].Text)
}

func TestTx_CreateDropTable(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	tx := mustBegin(t, db)
	err := tx.CreateTable(domain.TableSchema{Name: "users", Columns: []domain.Column{{Name: "x", Type: domain.TypeInteger}}})
	var schemaErr *domain.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
	tx.Rollback()

	tx = mustBegin(t, db)
	assert.NoError(t, tx.DropTable("users"))
	assert.NoError(t, tx.Commit())

	snap, _ := db.BeginRead()
	defer snap.Release()
	_, err = snap.Table("users")
	assert.ErrorAs(t, err, &schemaErr)
}

func TestTx_SavepointRollbackTo(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	tx := mustBegin(t, db)
	table, _ := tx.Table("users")
	table.Insert(1, []domain.Value{domain.IntegerValue(1), domain.TextValue("keep")}, false)

	sp := tx.Savepoint()
	table, _ = tx.Table("users")
	table.Insert(2, []domain.Value{domain.IntegerValue(2), domain.TextValue("drop")}, false)
	tx.RollbackTo(sp)

	table, _ = tx.Table("users")
	_, ok, _ := table.Lookup(1)
	assert.True(t, ok)
	_, ok, _ = table.Lookup(2)
	assert.False(t, ok)

	assert.NoError(t, tx.Commit())
}

func TestTx_RollbackDiscardsEverything(t *testing.T) {
	db := newMemDB(t)
	createUsersTable(t, db)

	tx := mustBegin(t, db)
	table, _ := tx.Table("users")
	table.Insert(7, []domain.Value{domain.IntegerValue(7), domain.TextValue("gone")}, false)
	assert.NoError(t, tx.Rollback())

	snap, _ := db.BeginRead()
	defer snap.Release()
	table, _ = snap.Table("users")
	_, ok, _ := table.Lookup(7)
	assert.False(t, ok)
}
