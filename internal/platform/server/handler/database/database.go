package database

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"CipherDB/internal/application/service"
	"CipherDB/internal/domain"
	"CipherDB/internal/platform/server/handler/respond"
)

// DatabaseHandler exposes handle lifecycle and metadata over HTTP.
type DatabaseHandler struct {
	openService   *service.OpenDatabaseService
	closeService  *service.CloseDatabaseService
	deleteService *service.DeleteDatabaseService
	infoService   *service.DatabaseInfoService
	getVersion    *service.GetVersionService
	setVersion    *service.SetVersionService
	localeService *service.SetLocaleService
}

func NewDatabaseHandler(openService *service.OpenDatabaseService,
	closeService *service.CloseDatabaseService,
	deleteService *service.DeleteDatabaseService,
	infoService *service.DatabaseInfoService,
	getVersion *service.GetVersionService,
	setVersion *service.SetVersionService,
	localeService *service.SetLocaleService) *DatabaseHandler {
	return &DatabaseHandler{
		openService:   openService,
		closeService:  closeService,
		deleteService: deleteService,
		infoService:   infoService,
		getVersion:    getVersion,
		setVersion:    setVersion,
		localeService: localeService,
	}
}

type OpenDatabaseRequest struct {
	Path       string   `json:"path"`
	Passphrase string   `json:"passphrase,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

type OpenDatabaseResponse struct {
	HandleID string `json:"handle_id"`
	Path     string `json:"path"`
	ReadOnly bool   `json:"read_only"`
}

var flagNames = map[string]domain.OpenFlags{
	"OPEN_READWRITE":             domain.OpenReadWrite,
	"OPEN_READONLY":              domain.OpenReadOnly,
	"CREATE_IF_NECESSARY":        domain.CreateIfNecessary,
	"NO_LOCALIZED_COLLATORS":     domain.NoLocalizedCollators,
	"ENABLE_WRITE_AHEAD_LOGGING": domain.EnableWriteAheadLogging,
}

func parseFlags(names []string) (domain.OpenFlags, bool) {
	var flags domain.OpenFlags
	for _, name := range names {
		f, ok := flagNames[name]
		if !ok {
			return 0, false
		}
		flags |= f
	}
	return flags, true
}

func (h *DatabaseHandler) Open(w http.ResponseWriter, r *http.Request) {
	var request OpenDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flags, ok := parseFlags(request.Flags)
	if !ok {
		http.Error(w, "unknown open flag", http.StatusBadRequest)
		return
	}
	result, err := h.openService.Execute(service.OpenDatabaseCommand{
		Path:       request.Path,
		Passphrase: request.Passphrase,
		Flags:      flags,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, OpenDatabaseResponse{
		HandleID: result.HandleID,
		Path:     result.Path,
		ReadOnly: result.ReadOnly,
	})
}

func (h *DatabaseHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "handleID")
	result, err := h.closeService.Execute(service.CloseDatabaseCommand{HandleID: id})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"path": result.Path})
}

type DeleteDatabaseRequest struct {
	Path string `json:"path"`
}

func (h *DatabaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var request DeleteDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.deleteService.Execute(service.DeleteDatabaseCommand{Path: request.Path})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"existed": result.Existed})
}

type DatabaseInfoResponse struct {
	Path     string `json:"path"`
	Open     bool   `json:"open"`
	ReadOnly bool   `json:"read_only"`
}

func (h *DatabaseHandler) Info(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "handleID")
	result, err := h.infoService.Execute(service.DatabaseInfoQuery{HandleID: id})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, DatabaseInfoResponse{
		Path:     result.Path,
		Open:     result.Open,
		ReadOnly: result.ReadOnly,
	})
}

func (h *DatabaseHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "handleID")
	result, err := h.getVersion.Execute(service.GetVersionQuery{HandleID: id})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"version": result.Version})
}

type SetVersionRequest struct {
	Version int64 `json:"version"`
}

func (h *DatabaseHandler) SetVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "handleID")
	var request SetVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.setVersion.Execute(service.SetVersionCommand{
		HandleID: id,
		Version:  request.Version,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"version": result.Version})
}

type SetLocaleRequest struct {
	Locale string `json:"locale"`
}

func (h *DatabaseHandler) SetLocale(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "handleID")
	var request SetLocaleRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.localeService.Execute(service.SetLocaleCommand{
		HandleID:     id,
		CollationKey: request.Locale,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"locale": result.CollationKey})
}
