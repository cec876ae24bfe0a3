package sqlexec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CipherDB/internal/domain"
	"CipherDB/internal/platform/repository/btreestore"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	store, err := btreestore.Open(
		domain.OpenRequest{Flags: domain.EnableWriteAheadLogging},
		btreestore.Options{},
	)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s := NewSession(store)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustExec(t *testing.T, s *Session, sql string) {
	t.Helper()
	if err := s.Exec(context.Background(), sql); err != nil {
		t.Fatalf("Exec(%q) failed: %v", sql, err)
	}
}

func queryAll(t *testing.T, s *Session, sql string) ([]string, []domain.Row) {
	t.Helper()
	cursor, err := s.Query(context.Background(), sql)
	if err != nil {
		t.Fatalf("Query(%q) failed: %v", sql, err)
	}
	defer cursor.Close()
	cols := cursor.Columns()
	var rows []domain.Row
	for cursor.Next() {
		rows = append(rows, cursor.Row().Copy())
	}
	if err := cursor.Err(); err != nil {
		t.Fatalf("Query(%q) iteration failed: %v", sql, err)
	}
	return cols, rows
}

func names(rows []domain.Row, idx int) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Values[idx].Text
	}
	return out
}

func seedUsers(t *testing.T, s *Session) {
	t.Helper()
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, score REAL)")
	mustExec(t, s, "INSERT INTO users VALUES (1, 'ada', 9.5), (2, 'grace', 8.0), (3, 'edsger', 7.25)")
}

func TestSession_CreateInsertSelect(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	cols, rows := queryAll(t, s, "SELECT * FROM users")
	assert.Equal(t, []string{"id", "name", "score"}, cols)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ada", "grace", "edsger"}, names(rows, 1))
	assert.Equal(t, int64(2), rows[1].Values[0].Int)
	assert.Equal(t, 8.0, rows[1].Values[2].Real)
}

func TestSession_ColumnsBeforeFirstRow(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	cursor, err := s.Query(context.Background(), "SELECT name, score FROM users WHERE id = 999")
	require.NoError(t, err)
	defer cursor.Close()
	// Metadata is available even when no row ever comes back.
	assert.Equal(t, []string{"name", "score"}, cursor.Columns())
	assert.False(t, cursor.Next())
	assert.NoError(t, cursor.Err())
}

func TestSession_ProjectionAndRowID(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE notes (body TEXT)")
	mustExec(t, s, "INSERT INTO notes VALUES ('first'), ('second')")

	cols, rows := queryAll(t, s, "SELECT rowid, body FROM notes")
	assert.Equal(t, []string{"rowid", "body"}, cols)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Values[0].Int)
	assert.Equal(t, "second", rows[1].Values[1].Text)
}

func TestSession_AutoRowIDContinuesPastMax(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)
	mustExec(t, s, "INSERT INTO users (name) VALUES ('barbara')")

	_, rows := queryAll(t, s, "SELECT id FROM users WHERE name = 'barbara'")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].Values[0].Int)
}

func TestSession_WherePointLookup(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	_, rows := queryAll(t, s, "SELECT name FROM users WHERE id = 2")
	require.Len(t, rows, 1)
	assert.Equal(t, "grace", rows[0].Values[0].Text)

	_, rows = queryAll(t, s, "SELECT name FROM users WHERE 3 = id")
	require.Len(t, rows, 1)
	assert.Equal(t, "edsger", rows[0].Values[0].Text)
}

func TestSession_WhereRangeWithResidual(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	_, rows := queryAll(t, s, "SELECT name FROM users WHERE id >= 2 AND score > 7.5")
	assert.Equal(t, []string{"grace"}, names(rows, 0))

	// Contradictory bounds select nothing without touching the tree.
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id > 5 AND id < 3")
	assert.Empty(t, rows)

	// Strict bounds at the int64 edges can never match any rowid.
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id > 9223372036854775807")
	assert.Empty(t, rows)
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id < -9223372036854775808")
	assert.Empty(t, rows)
}

func TestSession_OrderByAndLimit(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	_, rows := queryAll(t, s, "SELECT name FROM users ORDER BY name")
	assert.Equal(t, []string{"ada", "edsger", "grace"}, names(rows, 0))

	_, rows = queryAll(t, s, "SELECT name FROM users ORDER BY score DESC LIMIT 2")
	assert.Equal(t, []string{"ada", "grace"}, names(rows, 0))

	_, rows = queryAll(t, s, "SELECT name FROM users ORDER BY rowid DESC")
	assert.Equal(t, []string{"edsger", "grace", "ada"}, names(rows, 0))

	_, rows = queryAll(t, s, "SELECT name FROM users LIMIT 0")
	assert.Empty(t, rows)
}

func TestSession_Update(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "UPDATE users SET score = 10.0 WHERE name = 'ada'")
	_, rows := queryAll(t, s, "SELECT score FROM users WHERE id = 1")
	require.Len(t, rows, 1)
	assert.Equal(t, 10.0, rows[0].Values[0].Real)

	// Assignments read the old row, so swapping through both columns
	// keeps the original value visible to the second assignment.
	mustExec(t, s, "UPDATE users SET name = 'turing', score = score WHERE id = 2")
	_, rows = queryAll(t, s, "SELECT name, score FROM users WHERE id = 2")
	assert.Equal(t, "turing", rows[0].Values[0].Text)
	assert.Equal(t, 8.0, rows[0].Values[1].Real)
}

func TestSession_UpdateMovesPrimaryKey(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "UPDATE users SET id = 10 WHERE id = 1")
	_, rows := queryAll(t, s, "SELECT id, name FROM users WHERE id = 10")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(10), rows[0].Values[0].Int)
	assert.Equal(t, "ada", rows[0].Values[1].Text)
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id = 1")
	assert.Empty(t, rows)

	// Moving onto an occupied key is a constraint violation…
	err := s.Exec(context.Background(), "UPDATE users SET id = 2 WHERE id = 3")
	var cv *domain.ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, int64(2), cv.RowID)

	// …unless OR REPLACE takes the slot.
	mustExec(t, s, "UPDATE OR REPLACE users SET id = 2 WHERE id = 3")
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id = 2")
	require.Len(t, rows, 1)
	assert.Equal(t, "edsger", rows[0].Values[0].Text)
}

func TestSession_Delete(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "DELETE FROM users WHERE score < 8.5")
	_, rows := queryAll(t, s, "SELECT name FROM users")
	assert.Equal(t, []string{"ada"}, names(rows, 0))

	mustExec(t, s, "DELETE FROM users")
	_, rows = queryAll(t, s, "SELECT * FROM users")
	assert.Empty(t, rows)
}

func TestSession_ConflictAbortRollsBackStatement(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	err := s.Exec(context.Background(), "INSERT INTO users VALUES (5, 'x', 0.0), (1, 'dup', 0.0)")
	var cv *domain.ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, int64(1), cv.RowID)

	// The whole statement is undone, including the row before the dup.
	_, rows := queryAll(t, s, "SELECT * FROM users WHERE id = 5")
	assert.Empty(t, rows)
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id = 1")
	assert.Equal(t, "ada", rows[0].Values[0].Text)
}

func TestSession_ConflictFailKeepsEarlierRows(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	err := s.Exec(context.Background(),
		"INSERT OR FAIL INTO users VALUES (6, 'x', 0.0), (1, 'dup', 0.0), (7, 'y', 0.0)")
	var cv *domain.ConstraintViolation
	require.ErrorAs(t, err, &cv)

	_, rows := queryAll(t, s, "SELECT name FROM users WHERE id = 6")
	assert.Len(t, rows, 1, "rows before the conflict stay")
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id = 7")
	assert.Empty(t, rows, "rows after the conflict are never attempted")
}

func TestSession_ConflictIgnoreSkipsRows(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "INSERT OR IGNORE INTO users VALUES (1, 'dup', 0.0), (8, 'new', 1.0)")
	_, rows := queryAll(t, s, "SELECT name FROM users WHERE id = 1")
	assert.Equal(t, "ada", rows[0].Values[0].Text, "existing row untouched")
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id = 8")
	assert.Len(t, rows, 1)
}

func TestSession_ConflictReplaceOverwrites(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "INSERT OR REPLACE INTO users VALUES (1, 'lovelace', 9.9)")
	_, rows := queryAll(t, s, "SELECT name, score FROM users WHERE id = 1")
	require.Len(t, rows, 1)
	assert.Equal(t, "lovelace", rows[0].Values[0].Text)
	assert.Equal(t, 9.9, rows[0].Values[1].Real)
	_, rows = queryAll(t, s, "SELECT * FROM users")
	assert.Len(t, rows, 3)
}

func TestSession_ConflictRollbackTearsDownTransaction(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "BEGIN")
	mustExec(t, s, "INSERT INTO users VALUES (9, 'pending', 0.0)")

	err := s.Exec(context.Background(), "INSERT OR ROLLBACK INTO users VALUES (1, 'dup', 0.0)")
	var cv *domain.ConstraintViolation
	require.ErrorAs(t, err, &cv)

	// The transaction is gone, and everything it wrote with it.
	err = s.Exec(context.Background(), "COMMIT")
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)

	_, rows := queryAll(t, s, "SELECT * FROM users WHERE id = 9")
	assert.Empty(t, rows)
}

func TestSession_NotNullConstraint(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT NOT NULL)")

	err := s.Exec(context.Background(), "INSERT INTO items VALUES (1, NULL)")
	var cv *domain.ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "label", cv.Column)

	mustExec(t, s, "INSERT OR IGNORE INTO items VALUES (1, NULL), (2, 'kept')")
	_, rows := queryAll(t, s, "SELECT label FROM items")
	assert.Equal(t, []string{"kept"}, names(rows, 0))
}

func TestSession_TypeChecking(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	err := s.Exec(context.Background(), "INSERT INTO users VALUES (20, 42, 0.0)")
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "name", schemaErr.Column)

	// Integers widen into REAL columns.
	mustExec(t, s, "INSERT INTO users VALUES (21, 'ok', 5)")
	_, rows := queryAll(t, s, "SELECT score FROM users WHERE id = 21")
	assert.Equal(t, domain.TypeReal, rows[0].Values[0].Type)
	assert.Equal(t, 5.0, rows[0].Values[0].Real)
}

func TestSession_ExplicitTransaction(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "BEGIN")
	mustExec(t, s, "INSERT INTO users VALUES (30, 'uncommitted', 0.0)")

	// The session's own queries see the uncommitted write.
	_, rows := queryAll(t, s, "SELECT name FROM users WHERE id = 30")
	assert.Len(t, rows, 1)

	mustExec(t, s, "ROLLBACK")
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id = 30")
	assert.Empty(t, rows)

	mustExec(t, s, "BEGIN TRANSACTION")
	mustExec(t, s, "INSERT INTO users VALUES (31, 'committed', 0.0)")
	mustExec(t, s, "COMMIT")
	_, rows = queryAll(t, s, "SELECT name FROM users WHERE id = 31")
	assert.Len(t, rows, 1)
}

func TestSession_StatementFailureKeepsTransactionAlive(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "BEGIN")
	mustExec(t, s, "INSERT INTO users VALUES (40, 'kept', 0.0)")
	err := s.Exec(context.Background(), "INSERT INTO users VALUES (1, 'dup', 0.0)")
	var cv *domain.ConstraintViolation
	require.ErrorAs(t, err, &cv)

	// Only the failed statement rolled back; the transaction continues.
	mustExec(t, s, "COMMIT")
	_, rows := queryAll(t, s, "SELECT name FROM users WHERE id = 40")
	assert.Len(t, rows, 1)
}

func TestSession_TransactionControlErrors(t *testing.T) {
	s := newTestSession(t)
	var schemaErr *domain.SchemaError

	err := s.Exec(context.Background(), "COMMIT")
	require.ErrorAs(t, err, &schemaErr)

	err = s.Exec(context.Background(), "ROLLBACK")
	require.ErrorAs(t, err, &schemaErr)

	mustExec(t, s, "BEGIN")
	err = s.Exec(context.Background(), "BEGIN")
	require.ErrorAs(t, err, &schemaErr)
	mustExec(t, s, "ROLLBACK")
}

func TestSession_QueryExecMismatch(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)
	var schemaErr *domain.SchemaError

	_, err := s.Query(context.Background(), "INSERT INTO users VALUES (50, 'x', 0.0)")
	require.ErrorAs(t, err, &schemaErr)

	err = s.Exec(context.Background(), "SELECT * FROM users")
	require.ErrorAs(t, err, &schemaErr)
}

func TestSession_SyntaxErrorSurfacesPosition(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Query(context.Background(), "SELECT * FORM users")
	var syn *domain.SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, 9, syn.Position)
	assert.Equal(t, "FORM", syn.Token)
}

func TestSession_NullSemantics(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE maybe (id INTEGER PRIMARY KEY, hint TEXT)")
	mustExec(t, s, "INSERT INTO maybe VALUES (1, 'set'), (2, NULL)")

	// Equality against NULL never matches.
	_, rows := queryAll(t, s, "SELECT id FROM maybe WHERE hint = NULL")
	assert.Empty(t, rows)

	_, rows = queryAll(t, s, "SELECT id FROM maybe WHERE hint IS NULL")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Values[0].Int)

	_, rows = queryAll(t, s, "SELECT id FROM maybe WHERE hint IS NOT NULL")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Values[0].Int)
}

func TestSession_QueryCancellation(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cursor, err := s.Query(ctx, "SELECT * FROM users")
	require.NoError(t, err)
	defer cursor.Close()

	require.True(t, cursor.Next())
	cancel()
	assert.False(t, cursor.Next())
	assert.ErrorIs(t, cursor.Err(), context.Canceled)
}

func TestSession_CollationAffectsOrdering(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE words (id INTEGER PRIMARY KEY, w TEXT)")
	mustExec(t, s, "INSERT INTO words VALUES (1, 'a'), (2, 'B')")

	_, rows := queryAll(t, s, "SELECT w FROM words ORDER BY w")
	assert.Equal(t, []string{"B", "a"}, names(rows, 0), "bytewise by default")

	require.NoError(t, s.SetLocale("NOCASE"))
	_, rows = queryAll(t, s, "SELECT w FROM words ORDER BY w")
	assert.Equal(t, []string{"a", "B"}, names(rows, 0))
}

func TestSession_VersionRoundTrip(t *testing.T) {
	s := newTestSession(t)

	v, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, s.SetVersion(7))
	v, err = s.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestSession_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	store, err := btreestore.Open(
		domain.OpenRequest{Path: path, Flags: domain.CreateIfNecessary},
		btreestore.Options{},
	)
	require.NoError(t, err)
	s := NewSession(store)
	mustExec(t, s, "CREATE TABLE t (a INTEGER)")
	mustExec(t, s, "INSERT INTO t VALUES (1)")
	require.NoError(t, s.Close())

	store, err = btreestore.Open(
		domain.OpenRequest{Path: path, Flags: domain.OpenReadOnly},
		btreestore.Options{},
	)
	require.NoError(t, err)
	s = NewSession(store)
	defer s.Close()

	assert.True(t, s.ReadOnly())
	assert.ErrorIs(t, s.Exec(context.Background(), "INSERT INTO t VALUES (2)"), domain.ErrReadOnly)
	assert.ErrorIs(t, s.Exec(context.Background(), "BEGIN"), domain.ErrReadOnly)
	assert.ErrorIs(t, s.SetVersion(1), domain.ErrReadOnly)

	_, rows := queryAll(t, s, "SELECT a FROM t")
	assert.Len(t, rows, 1)
}

func TestSession_ClosedHandle(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Close())

	_, err := s.Query(context.Background(), "SELECT 1 FROM t")
	assert.ErrorIs(t, err, domain.ErrHandleClosed)
	assert.ErrorIs(t, s.Exec(context.Background(), "CREATE TABLE t (a INTEGER)"), domain.ErrHandleClosed)
	assert.False(t, s.IsOpen())
}

func TestSession_DropTable(t *testing.T) {
	s := newTestSession(t)
	seedUsers(t, s)

	mustExec(t, s, "DROP TABLE users")
	_, err := s.Query(context.Background(), "SELECT * FROM users")
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}
