package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/core/metrics"
	"github.com/pulseguard/pulseguard/internal/websocket"
)

// NewRouter assembles the HTTP surface: the reporting API, the metrics
// endpoint, and the websocket event stream.
func NewRouter(cfg *config.Config, handlers *Handlers, hub *websocket.Hub, collector metrics.Collector, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(metricsMiddleware(collector))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", handlers.Health)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	if cfg.WebSocket.Enabled && hub != nil {
		r.GET("/ws", hub.HandleConnection)
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/alerts", handlers.ListAlerts)
		v1.GET("/alerts/:id", handlers.GetAlert)
		v1.GET("/incidents", handlers.ListIncidents)
		v1.GET("/incidents/:id", handlers.GetIncident)
		v1.POST("/incidents/:id/resolve", handlers.ResolveIncident)
		v1.GET("/notifications", handlers.ListNotifications)
		v1.GET("/snapshots", handlers.Snapshots)
		v1.GET("/stats", handlers.Stats)
	}

	return r
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

func metricsMiddleware(collector metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
