// Package api provides the HTTP surface of the document indexing and search
// service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finlex/docindexer/api/handlers"
	"github.com/finlex/docindexer/api/middleware"
	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/service"
)

// Server wraps the gin router and the service facade.
type Server struct {
	cfg    *config.Config
	svc    *service.Service
	router *gin.Engine
	server *http.Server
	logger zerolog.Logger
}

// NewServer builds the HTTP server around an already-constructed service.
func NewServer(cfg *config.Config, svc *service.Service) *Server {
	zerolog.SetGlobalLevel(parseLogLevel(cfg.LogLevel))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	logger := log.With().Str("component", "api-server").Logger()

	s := &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
	}
	s.setupRouter()

	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRouter() {
	if s.cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Metrics())

	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	h := handlers.New(s.svc)

	s.router.GET("/", h.Info)
	s.router.GET("/health", h.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	throttled := s.router.Group("/")
	throttled.Use(middleware.RateLimit(300, 50))
	{
		throttled.GET("/stats", h.Stats)
		throttled.POST("/index", h.Index)
		throttled.POST("/search", h.Search)
		throttled.GET("/jobs/:id", h.JobStatus)
		throttled.POST("/jobs/retry", h.RetryJobs)
		throttled.DELETE("/documents/:id", h.DeleteDocument)
	}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info().
		Str("host", s.cfg.Server.Host).
		Int("port", s.cfg.Server.Port).
		Msg("starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests, then closes the service.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := s.svc.Close(ctx); err != nil {
		return fmt.Errorf("failed to close service: %w", err)
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
