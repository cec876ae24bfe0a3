package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeDatabase struct {
	path   string
	closed bool
}

func (f *fakeDatabase) Query(ctx context.Context, sql string) (Cursor, error) { return nil, nil }
func (f *fakeDatabase) Exec(ctx context.Context, sql string) error            { return nil }
func (f *fakeDatabase) Version() (int64, error)                               { return 0, nil }
func (f *fakeDatabase) SetVersion(v int64) error                              { return nil }
func (f *fakeDatabase) Path() string                                          { return f.path }
func (f *fakeDatabase) IsOpen() bool                                          { return !f.closed }
func (f *fakeDatabase) ReadOnly() bool                                        { return false }
func (f *fakeDatabase) SetLocale(collationKey string) error                   { return nil }
func (f *fakeDatabase) Close() error                                          { f.closed = true; return nil }

func TestDbHandleManager_AddGetRemove(t *testing.T) {
	m := NewDbHandleManager()
	db := &fakeDatabase{path: "/tmp/a.db"}

	id := m.Add(db)
	got, ok := m.Get(id)
	assert.True(t, ok)
	assert.Equal(t, db, got)

	removed, ok := m.Remove(id)
	assert.True(t, ok)
	assert.Equal(t, db, removed)

	_, ok = m.Get(id)
	assert.False(t, ok)
}

func TestDbHandleManager_FindByPath(t *testing.T) {
	m := NewDbHandleManager()
	a := &fakeDatabase{path: "/tmp/a.db"}
	b := &fakeDatabase{path: "/tmp/b.db"}
	m.Add(a)
	wantID := m.Add(b)

	id, db, ok := m.FindByPath("/tmp/b.db")
	assert.True(t, ok)
	assert.Equal(t, wantID, id)
	assert.Equal(t, b, db)

	_, _, ok = m.FindByPath("/tmp/missing.db")
	assert.False(t, ok)
}

func TestDbHandleManager_CloseAll(t *testing.T) {
	m := NewDbHandleManager()
	a := &fakeDatabase{path: "/tmp/a.db"}
	b := &fakeDatabase{path: "/tmp/b.db"}
	m.Add(a)
	m.Add(b)

	err := m.CloseAll()
	assert.NoError(t, err)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	_, _, ok := m.FindByPath("/tmp/a.db")
	assert.False(t, ok)
}
