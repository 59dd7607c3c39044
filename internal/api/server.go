package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/api/handlers"
	"vigil-worker-go/internal/config"
)

// Deps are the services the API surfaces.
type Deps struct {
	Manager   handlers.SourceManager
	Health    handlers.HealthDeps
	Messaging interface{ IsConnected() bool }
	Detector  interface {
		IsHealthy() bool
		UnavailableCount() int64
	}
}

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler *handlers.HealthHandler
	sourceHandler *handlers.SourceHandler
	systemHandler *handlers.SystemHandler
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	return &Server{
		config:        cfg,
		router:        router,
		healthHandler: handlers.NewHealthHandler(cfg.WorkerID, deps.Health, deps.Messaging, deps.Detector),
		sourceHandler: handlers.NewSourceHandler(deps.Manager),
		systemHandler: handlers.NewSystemHandler(cfg.WorkerID, deps.Manager, deps.Detector),
	}
}

func (s *Server) Setup() error {
	s.setupMiddleware()

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	return nil
}

func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting worker API")
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	log.Info().Msg("Stopping worker API")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
