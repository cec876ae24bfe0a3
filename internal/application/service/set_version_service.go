package service

import (
	"CipherDB/internal/domain"
)

type SetVersionService struct {
	handles *domain.DbHandleManager
}

func NewSetVersionService(handles *domain.DbHandleManager) *SetVersionService {
	return &SetVersionService{
		handles: handles,
	}
}

type SetVersionCommand struct {
	HandleID string
	Version  int64
}

type SetVersionResult struct {
	Version int64
}

func (s *SetVersionService) Execute(command SetVersionCommand) (SetVersionResult, error) {
	db, ok := s.handles.Get(command.HandleID)
	if !ok {
		return SetVersionResult{}, domain.ErrHandleClosed
	}
	if err := db.SetVersion(command.Version); err != nil {
		return SetVersionResult{}, err
	}
	return SetVersionResult{Version: command.Version}, nil
}
