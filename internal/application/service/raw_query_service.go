package service

import (
	"context"

	"CipherDB/internal/domain"
)

// RawQueryService runs a SELECT and drains its cursor into a response
// the transport can serialize.
type RawQueryService struct {
	handles *domain.DbHandleManager
}

func NewRawQueryService(handles *domain.DbHandleManager) *RawQueryService {
	return &RawQueryService{
		handles: handles,
	}
}

type RawQueryCommand struct {
	HandleID string
	SQL      string
	// MaxRows caps the response size; 0 means no cap.
	MaxRows int
}

type RawQueryResult struct {
	Columns []string
	Rows    [][]any
	// Truncated is set when MaxRows cut the result short.
	Truncated bool
}

func (s *RawQueryService) Execute(ctx context.Context, command RawQueryCommand) (RawQueryResult, error) {
	db, ok := s.handles.Get(command.HandleID)
	if !ok {
		return RawQueryResult{}, domain.ErrHandleClosed
	}
	cursor, err := db.Query(ctx, command.SQL)
	if err != nil {
		return RawQueryResult{}, err
	}
	defer cursor.Close()

	result := RawQueryResult{Columns: cursor.Columns(), Rows: [][]any{}}
	for cursor.Next() {
		if command.MaxRows > 0 && len(result.Rows) >= command.MaxRows {
			result.Truncated = true
			break
		}
		result.Rows = append(result.Rows, cursor.Row().Native())
	}
	if err := cursor.Err(); err != nil {
		return RawQueryResult{}, err
	}
	return result, nil
}
