package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/jobsignal/pkg/config"
	"github.com/nimburion/jobsignal/pkg/health"
	"github.com/nimburion/jobsignal/pkg/observability/logger"
	"github.com/nimburion/jobsignal/pkg/observability/metrics"
)

// ManagementServer serves the operational endpoints of a job runner:
//   - /health: liveness, always 200
//   - /ready: runs the health registry, 503 when a check is unhealthy
//   - /metrics: Prometheus exposition, only when a metrics registry is given
type ManagementServer struct {
	*Server
	engine          *gin.Engine
	healthRegistry  *health.Registry
	metricsRegistry *metrics.Registry
}

// NewManagementServer builds the management router and server. A nil
// metricsRegistry leaves /metrics unregistered.
func NewManagementServer(
	cfg config.ManagementConfig,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *metrics.Registry,
) *ManagementServer {
	if log == nil {
		log = logger.Nop()
	}
	if healthRegistry == nil {
		healthRegistry = health.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestLogger(log), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("management handler panicked", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))

	s := &ManagementServer{
		Server: NewServer(Config{
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}, engine, log),
		engine:          engine,
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
	}
	s.registerEndpoints()
	return s
}

func (s *ManagementServer) registerEndpoints() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	if s.metricsRegistry != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metricsRegistry.Handler()))
	}
}

func (s *ManagementServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy})
}

func (s *ManagementServer) handleReady(c *gin.Context) {
	result := s.healthRegistry.Check(c.Request.Context())
	if !result.IsHealthy() {
		c.JSON(http.StatusServiceUnavailable, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Handler exposes the router, mainly for tests.
func (s *ManagementServer) Handler() http.Handler {
	return s.engine
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("management request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
