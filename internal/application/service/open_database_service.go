package service

import (
	"CipherDB/internal/domain"
)

// OpenDatabaseService opens (and with the create flag, creates) a
// database and registers the handle.
type OpenDatabaseService struct {
	engine  domain.Engine
	handles *domain.DbHandleManager
}

func NewOpenDatabaseService(engine domain.Engine, handles *domain.DbHandleManager) *OpenDatabaseService {
	return &OpenDatabaseService{
		engine:  engine,
		handles: handles,
	}
}

type OpenDatabaseCommand struct {
	Path       string
	Passphrase string
	Flags      domain.OpenFlags
}

type OpenDatabaseResult struct {
	HandleID string
	Path     string
	ReadOnly bool
}

func (s *OpenDatabaseService) Execute(command OpenDatabaseCommand) (OpenDatabaseResult, error) {
	db, err := s.engine.Open(domain.OpenRequest{
		Path:       command.Path,
		Passphrase: command.Passphrase,
		Flags:      command.Flags,
	})
	if err != nil {
		return OpenDatabaseResult{}, err
	}
	id := s.handles.Add(db)
	return OpenDatabaseResult{
		HandleID: id,
		Path:     db.Path(),
		ReadOnly: db.ReadOnly(),
	}, nil
}
