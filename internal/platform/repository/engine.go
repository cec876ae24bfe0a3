package repository

import (
	"path/filepath"

	"CipherDB/internal/domain"
	"CipherDB/internal/platform/repository/btreestore"
	"CipherDB/internal/platform/sqlexec"
)

// SQLEngine opens page stores and wraps them in SQL sessions. It is the
// single implementation of domain.Engine. Relative paths are anchored
// under dataDir when one is configured; empty paths stay in memory.
type SQLEngine struct {
	opts    btreestore.Options
	dataDir string
}

func NewSQLEngine(opts btreestore.Options, dataDir string) *SQLEngine {
	return &SQLEngine{opts: opts, dataDir: dataDir}
}

// Resolve anchors relative paths under the data directory. Open handles
// register under the resolved path, so lookups by request path must pass
// through here too.
func (e *SQLEngine) Resolve(path string) string {
	if path == "" || e.dataDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.dataDir, path)
}

func (e *SQLEngine) Open(req domain.OpenRequest) (domain.Database, error) {
	req.Path = e.Resolve(req.Path)
	store, err := btreestore.Open(req, e.opts)
	if err != nil {
		return nil, err
	}
	return sqlexec.NewSession(store), nil
}

func (e *SQLEngine) Delete(path string) (bool, error) {
	return btreestore.Delete(e.Resolve(path))
}
