package service

import (
	"CipherDB/internal/domain"
)

// DatabaseInfoService reports the static facts about one open handle.
type DatabaseInfoService struct {
	handles *domain.DbHandleManager
}

func NewDatabaseInfoService(handles *domain.DbHandleManager) *DatabaseInfoService {
	return &DatabaseInfoService{
		handles: handles,
	}
}

type DatabaseInfoQuery struct {
	HandleID string
}

type DatabaseInfoResult struct {
	Path     string
	Open     bool
	ReadOnly bool
}

func (s *DatabaseInfoService) Execute(query DatabaseInfoQuery) (DatabaseInfoResult, error) {
	db, ok := s.handles.Get(query.HandleID)
	if !ok {
		return DatabaseInfoResult{}, domain.ErrHandleClosed
	}
	return DatabaseInfoResult{
		Path:     db.Path(),
		Open:     db.IsOpen(),
		ReadOnly: db.ReadOnly(),
	}, nil
}
