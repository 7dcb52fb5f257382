// Package http exposes the agent engine over HTTP: task submission with a
// live SSE step stream, task state lookup, health, and metrics.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/coderpwh1024/multi-agent-system/internal/logging"
	"github.com/coderpwh1024/multi-agent-system/internal/server/app"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string
	Debug           bool
	ShutdownTimeout time.Duration
}

// Server is the gin-backed HTTP transport.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger

	shutdownTimeout time.Duration
}

// NewServer builds the router over coordinator. metricsHandler may be nil to
// disable the /metrics endpoint.
func NewServer(coordinator *app.Coordinator, metricsHandler http.Handler, config ServerConfig) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	handler := NewAgentHandler(coordinator)

	agent := engine.Group("/agent")
	{
		agent.POST("/execute", handler.Execute)
		agent.POST("/execute/stream", handler.ExecuteStream)
		agent.GET("/task/:taskId", handler.GetTask)
		agent.GET("/task/:taskId/stream", handler.AttachStream)
		agent.GET("/health", handler.Health)
	}
	if metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(metricsHandler))
	}

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		engine: engine,
		httpServer: &http.Server{
			Addr:    config.Addr,
			Handler: engine,
		},
		logger:          logging.NewComponentLogger("HTTPServer"),
		shutdownTimeout: shutdownTimeout,
	}
}

// Handler returns the underlying router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
