package service

import (
	"CipherDB/internal/domain"
)

type GetVersionService struct {
	handles *domain.DbHandleManager
}

func NewGetVersionService(handles *domain.DbHandleManager) *GetVersionService {
	return &GetVersionService{
		handles: handles,
	}
}

type GetVersionQuery struct {
	HandleID string
}

type GetVersionResult struct {
	Version int64
}

func (s *GetVersionService) Execute(query GetVersionQuery) (GetVersionResult, error) {
	db, ok := s.handles.Get(query.HandleID)
	if !ok {
		return GetVersionResult{}, domain.ErrHandleClosed
	}
	version, err := db.Version()
	if err != nil {
		return GetVersionResult{}, err
	}
	return GetVersionResult{Version: version}, nil
}
