package service

import (
	"context"

	"CipherDB/internal/domain"
)

// ExecuteStatementService runs one non-query statement on a handle.
type ExecuteStatementService struct {
	handles *domain.DbHandleManager
}

func NewExecuteStatementService(handles *domain.DbHandleManager) *ExecuteStatementService {
	return &ExecuteStatementService{
		handles: handles,
	}
}

type ExecuteStatementCommand struct {
	HandleID string
	SQL      string
}

type ExecuteStatementResult struct {
	Path string
}

func (s *ExecuteStatementService) Execute(ctx context.Context, command ExecuteStatementCommand) (ExecuteStatementResult, error) {
	db, ok := s.handles.Get(command.HandleID)
	if !ok {
		return ExecuteStatementResult{}, domain.ErrHandleClosed
	}
	if err := db.Exec(ctx, command.SQL); err != nil {
		return ExecuteStatementResult{}, err
	}
	return ExecuteStatementResult{Path: db.Path()}, nil
}
