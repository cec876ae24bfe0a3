package domain

import (
	"sync"

	"github.com/google/uuid"
)

// DbHandleManager tracks the open database handles of one engine process,
// keyed by an opaque id handed back to API callers. It is injected where
// needed instead of living in a package-level table.
type DbHandleManager struct {
	mu      sync.RWMutex
	handles map[string]Database
}

func NewDbHandleManager() *DbHandleManager {
	return &DbHandleManager{
		handles: make(map[string]Database),
	}
}

// Add registers an open handle and returns its id.
func (m *DbHandleManager) Add(db Database) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.handles[id] = db
	return id
}

func (m *DbHandleManager) Get(id string) (Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	db, ok := m.handles[id]
	return db, ok
}

// Remove drops the handle from the registry without closing it.
func (m *DbHandleManager) Remove(id string) (Database, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.handles[id]
	if ok {
		delete(m.handles, id)
	}
	return db, ok
}

// FindByPath returns the first open handle on the given path, if any.
func (m *DbHandleManager) FindByPath(path string) (string, Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, db := range m.handles {
		if db.Path() == path {
			return id, db, true
		}
	}
	return "", nil, false
}

// CloseAll closes every registered handle, keeping the first error.
func (m *DbHandleManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for id, db := range m.handles {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(m.handles, id)
	}
	return first
}
