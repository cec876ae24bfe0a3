package service

import (
	"CipherDB/internal/domain"
)

// DeleteDatabaseService removes a database file and its WAL sibling.
// Any open handle on that path is closed first.
type DeleteDatabaseService struct {
	engine  domain.Engine
	handles *domain.DbHandleManager
}

func NewDeleteDatabaseService(engine domain.Engine, handles *domain.DbHandleManager) *DeleteDatabaseService {
	return &DeleteDatabaseService{
		engine:  engine,
		handles: handles,
	}
}

type DeleteDatabaseCommand struct {
	Path string
}

type DeleteDatabaseResult struct {
	Existed bool
}

func (s *DeleteDatabaseService) Execute(command DeleteDatabaseCommand) (DeleteDatabaseResult, error) {
	// Handles register under the resolved path, not the request path.
	if id, db, ok := s.handles.FindByPath(s.engine.Resolve(command.Path)); ok {
		s.handles.Remove(id)
		if err := db.Close(); err != nil {
			return DeleteDatabaseResult{}, err
		}
	}
	existed, err := s.engine.Delete(command.Path)
	if err != nil {
		return DeleteDatabaseResult{}, err
	}
	return DeleteDatabaseResult{Existed: existed}, nil
}
