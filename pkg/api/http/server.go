package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/internal/application/engine"
	"github.com/metahuman-os/cortex/internal/application/stream"
	"github.com/metahuman-os/cortex/pkg/ports"
)

// Server is the HTTP API server.
type Server struct {
	router    *gin.Engine
	server    *http.Server
	streamer  *stream.Streamer
	validator *engine.Validator
	store     ports.GraphStore
	logger    *zap.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Port      int
	Streamer  *stream.Streamer
	Validator *engine.Validator
	Store     ports.GraphStore
	Logger    *zap.Logger
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router:    router,
		streamer:  cfg.Streamer,
		validator: cfg.Validator,
		store:     cfg.Store,
		logger:    cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/runs/:workflow/stream", s.handleStreamRun)
		v1.POST("/runs/:id/cancel", s.handleCancelRun)
		v1.GET("/runs", s.handleListRuns)

		v1.POST("/graphs/validate", s.handleValidateGraph)

		v1.GET("/workflows", s.handleListWorkflows)
		v1.GET("/workflows/:name", s.handleGetWorkflow)
		v1.PUT("/workflows/:name", s.handleSaveWorkflow)
	}
}

// SetupWebSocket registers the run observer WebSocket route.
func (s *Server) SetupWebSocket(handler interface {
	HandleRunStream(*gin.Context)
}) {
	s.router.GET("/api/v1/runs/:id/ws", handler.HandleRunStream)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
