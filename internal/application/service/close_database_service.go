package service

import (
	"CipherDB/internal/domain"
)

type CloseDatabaseService struct {
	handles *domain.DbHandleManager
}

func NewCloseDatabaseService(handles *domain.DbHandleManager) *CloseDatabaseService {
	return &CloseDatabaseService{
		handles: handles,
	}
}

type CloseDatabaseCommand struct {
	HandleID string
}

type CloseDatabaseResult struct {
	Path string
}

func (s *CloseDatabaseService) Execute(command CloseDatabaseCommand) (CloseDatabaseResult, error) {
	db, ok := s.handles.Remove(command.HandleID)
	if !ok {
		return CloseDatabaseResult{}, domain.ErrHandleClosed
	}
	path := db.Path()
	if err := db.Close(); err != nil {
		return CloseDatabaseResult{}, err
	}
	return CloseDatabaseResult{Path: path}, nil
}
