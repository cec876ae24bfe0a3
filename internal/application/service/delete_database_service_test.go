package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CipherDB/internal/domain"
	"CipherDB/internal/platform/repository"
	"CipherDB/internal/platform/repository/btreestore"
)

func TestDeleteDatabaseService_ClosesHandleOpenedByRelativePath(t *testing.T) {
	dir := t.TempDir()
	engine := repository.NewSQLEngine(btreestore.Options{}, dir)
	handles := domain.NewDbHandleManager()

	// The handle registers under the resolved path, not the request path.
	db, err := engine.Open(domain.OpenRequest{Path: "app.db", Flags: domain.CreateIfNecessary})
	require.NoError(t, err)
	handles.Add(db)

	service := NewDeleteDatabaseService(engine, handles)
	result, err := service.Execute(DeleteDatabaseCommand{Path: "app.db"})
	require.NoError(t, err)
	assert.True(t, result.Existed)

	assert.False(t, db.IsOpen(), "live handle must be closed before its files go away")
	_, _, found := handles.FindByPath(filepath.Join(dir, "app.db"))
	assert.False(t, found)
	if _, err := os.Stat(filepath.Join(dir, "app.db")); !os.IsNotExist(err) {
		t.Errorf("Expected database file to be removed, stat err %v", err)
	}
}

func TestDeleteDatabaseService_MissingDatabase(t *testing.T) {
	engine := repository.NewSQLEngine(btreestore.Options{}, t.TempDir())
	service := NewDeleteDatabaseService(engine, domain.NewDbHandleManager())

	result, err := service.Execute(DeleteDatabaseCommand{Path: "never-created.db"})
	require.NoError(t, err)
	assert.False(t, result.Existed)
}
