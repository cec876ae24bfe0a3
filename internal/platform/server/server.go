package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"CipherDB/internal/platform/server/handler/database"
	"CipherDB/internal/platform/server/handler/health"
	"CipherDB/internal/platform/server/handler/query"
)

type Server struct {
	httpAddr string
	engine   *chi.Mux
}

func NewServer(host string, port int,
	databaseHandler *database.DatabaseHandler,
	queryHandler *query.QueryHandler) Server {
	url := fmt.Sprintf("%s:%d", host, port)
	srv := Server{
		engine:   chi.NewRouter(),
		httpAddr: url,
	}
	srv.engine.Use(middleware.Logger)
	srv.registerRoutes(databaseHandler, queryHandler)
	return srv
}

func (s *Server) Run() error {
	log.Println("Server Running on:", s.httpAddr)
	return http.ListenAndServe(s.httpAddr, s.engine)
}

func (s *Server) registerRoutes(databaseHandler *database.DatabaseHandler,
	queryHandler *query.QueryHandler) {
	s.engine.Get("/health", health.CheckHandler)
	s.engine.Post("/databases", databaseHandler.Open)
	s.engine.Delete("/databases", databaseHandler.Delete)
	s.engine.Get("/databases/{handleID}", databaseHandler.Info)
	s.engine.Delete("/databases/{handleID}", databaseHandler.Close)
	s.engine.Get("/databases/{handleID}/version", databaseHandler.GetVersion)
	s.engine.Put("/databases/{handleID}/version", databaseHandler.SetVersion)
	s.engine.Put("/databases/{handleID}/locale", databaseHandler.SetLocale)
	s.engine.Post("/databases/{handleID}/query", queryHandler.Query)
	s.engine.Post("/databases/{handleID}/execute", queryHandler.Execute)
}
