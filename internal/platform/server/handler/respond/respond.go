package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"CipherDB/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// JSON writes a 2xx response with a JSON body.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Error maps an engine error onto an HTTP status plus a machine-readable
// kind, so clients can tell a retryable lock timeout from a hard failure.
func Error(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	JSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func classify(err error) (int, string) {
	var (
		syntaxErr     *domain.SyntaxError
		schemaErr     *domain.SchemaError
		constraintErr *domain.ConstraintViolation
		corruptErr    *domain.CorruptPageError
		ioErr         *domain.IOError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return http.StatusBadRequest, "syntax"
	case errors.As(err, &schemaErr):
		return http.StatusBadRequest, "schema"
	case errors.As(err, &constraintErr):
		return http.StatusConflict, "constraint"
	case errors.Is(err, domain.ErrAuthFailure):
		return http.StatusUnauthorized, "auth"
	case errors.Is(err, domain.ErrHandleClosed):
		return http.StatusNotFound, "closed"
	case errors.Is(err, domain.ErrReadOnly):
		return http.StatusForbidden, "readonly"
	case errors.Is(err, domain.ErrLockTimeout):
		return http.StatusServiceUnavailable, "lock_timeout"
	case errors.Is(err, domain.ErrStorageFull):
		return http.StatusInsufficientStorage, "storage_full"
	case errors.As(err, &corruptErr):
		return http.StatusInternalServerError, "corrupt"
	case errors.As(err, &ioErr):
		return http.StatusInternalServerError, "io"
	}
	return http.StatusInternalServerError, "internal"
}
