package service

import (
	"CipherDB/internal/domain"
)

// SetLocaleService switches the text collation used by an open handle.
type SetLocaleService struct {
	handles *domain.DbHandleManager
}

func NewSetLocaleService(handles *domain.DbHandleManager) *SetLocaleService {
	return &SetLocaleService{
		handles: handles,
	}
}

type SetLocaleCommand struct {
	HandleID     string
	CollationKey string
}

type SetLocaleResult struct {
	CollationKey string
}

func (s *SetLocaleService) Execute(command SetLocaleCommand) (SetLocaleResult, error) {
	db, ok := s.handles.Get(command.HandleID)
	if !ok {
		return SetLocaleResult{}, domain.ErrHandleClosed
	}
	if err := db.SetLocale(command.CollationKey); err != nil {
		return SetLocaleResult{}, err
	}
	return SetLocaleResult{CollationKey: command.CollationKey}, nil
}
