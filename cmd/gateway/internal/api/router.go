package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter mounts the client-facing surface: the websocket endpoint and the REST API.
func NewRouter(h *Handler, stream http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	wrapped := gin.WrapH(stream)
	router.GET("/ws/crypto/", wrapped)
	router.GET("/ws/crypto", wrapped)

	apiGroup := router.Group("/api/crypto", h.RequireIdentity)
	apiGroup.GET("/prices/latest/", h.LatestPrices)
	apiGroup.GET("/symbols/", h.Symbols)

	router.GET("/health", h.HealthCheck)
	return router
}

// NewInternalRouter mounts operator endpoints. It is served on a separate
// listener that is not exposed to clients.
func NewInternalRouter(h *Handler, metricsHandler http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	if h.runner != nil {
		router.POST("/internal/feed/run", h.RunFeed)
	}
	router.GET("/health", h.HealthCheck)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
