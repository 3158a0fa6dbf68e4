package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftlabs/driftroute/internal/engine"
	"github.com/driftlabs/driftroute/internal/metrics"
	"github.com/driftlabs/driftroute/pkg/utils"
)

// Router wires the HTTP surface over the routing engine.
type Router struct {
	gin      *gin.Engine
	handlers *Handlers
	logger   *utils.Logger
}

// NewRouter creates the gin engine with all routes registered. A positive
// rateLimit enables per-client throttling of that many requests per minute.
func NewRouter(eng *engine.Engine, collector *metrics.Collector, rateLimit int, logger *utils.Logger) *Router {
	if logger == nil {
		logger = utils.NewLogger()
	}
	gin.SetMode(gin.ReleaseMode)

	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(CORSMiddleware())
	g.Use(LoggerMiddleware(logger))
	if rateLimit > 0 {
		g.Use(NewRateLimiter(rateLimit, logger).Middleware())
	}

	r := &Router{
		gin:      g,
		handlers: NewHandlers(eng, logger),
		logger:   logger,
	}

	g.GET("/healthz", r.handlers.Healthz)
	g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{})))

	v1 := g.Group("/v1")
	{
		v1.POST("/route", r.handlers.Route)
		v1.GET("/stats", r.handlers.Stats)
		v1.GET("/backends", r.handlers.Backends)
		v1.GET("/recommendations", r.handlers.Recommendations)
	}

	return r
}

// Engine returns the underlying gin engine for the HTTP server.
func (r *Router) Engine() *gin.Engine {
	return r.gin
}

// CORSMiddleware handles CORS headers.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests.
func LoggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("%s %s -> %d in %s",
			c.Request.Method, path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
