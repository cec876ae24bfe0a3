package query

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"CipherDB/internal/application/service"
	"CipherDB/internal/platform/server/handler/respond"
)

// QueryHandler runs SQL against an open handle.
type QueryHandler struct {
	queryService   *service.RawQueryService
	executeService *service.ExecuteStatementService
}

func NewQueryHandler(queryService *service.RawQueryService,
	executeService *service.ExecuteStatementService) *QueryHandler {
	return &QueryHandler{
		queryService:   queryService,
		executeService: executeService,
	}
}

type QueryRequest struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"max_rows,omitempty"`
}

type QueryResponse struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "handleID")
	var request QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.queryService.Execute(r.Context(), service.RawQueryCommand{
		HandleID: id,
		SQL:      request.SQL,
		MaxRows:  request.MaxRows,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, QueryResponse{
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
	})
}

type ExecuteRequest struct {
	SQL string `json:"sql"`
}

func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "handleID")
	var request ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.executeService.Execute(r.Context(), service.ExecuteStatementCommand{
		HandleID: id,
		SQL:      request.SQL,
	}); err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
