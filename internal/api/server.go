package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quantgate/internal/config"
	"quantgate/internal/logger"
	"quantgate/internal/monitoring"
	"quantgate/internal/scheduler"
	"quantgate/internal/tracker"
	"quantgate/internal/version"
)

// Server represents the operations API server. It exposes read access to
// version history, run history and divergence reports, plus the manual
// rollback override.
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	logger     logger.Logger

	handlers *Handlers
}

// Handlers bundles the API handler dependencies
type Handlers struct {
	versions  version.Store
	state     scheduler.StateStore
	scheduler *scheduler.ReOptimizationScheduler
	tracker   *tracker.Tracker
}

// NewServer creates a new operations API server
func NewServer(cfg *config.Config, versions version.Store, state scheduler.StateStore, sched *scheduler.ReOptimizationScheduler, trk *tracker.Tracker, metrics *monitoring.Metrics, log logger.Logger) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if metrics != nil {
		router.Use(metrics.GinMiddleware())
	}

	server := &Server{
		config: cfg,
		router: router,
		logger: log,
		handlers: &Handlers{
			versions:  versions,
			state:     state,
			scheduler: sched,
			tracker:   trk,
		},
	}
	server.setupRoutes(metrics)
	return server
}

func (s *Server) setupRoutes(metrics *monitoring.Metrics) {
	s.router.GET("/health", s.handleHealth)
	if metrics != nil {
		s.router.GET("/metrics", monitoring.PrometheusHandler())
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/strategies/:strategy/versions", s.handlers.ListVersions)
		v1.GET("/strategies/:strategy/versions/active", s.handlers.ActiveVersion)
		v1.GET("/strategies/:strategy/optimizations", s.handlers.ListOptimizations)
		v1.GET("/strategies/:strategy/divergence", s.handlers.DivergenceReport)
		v1.POST("/strategies/:strategy/rollback", s.handlers.Rollback)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"app":     s.config.App.Name,
		"version": s.config.App.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server and blocks until it exits
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.logger.Info("api server starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
