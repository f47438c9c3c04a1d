package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/handler"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/metrics"
)

// Config carries what the router needs besides the handlers.
type Config struct {
	CORSOrigins []string
	Limiter     httpmiddleware.Limiter
	Metrics     *metrics.Metrics
}

// New wires middleware and routes. CORS runs first so preflight requests are
// answered before rate limiting or any handler.
func New(cfg Config, h *handler.Handler) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if cfg.Metrics != nil {
		r.Use(httpmiddleware.Metrics(cfg.Metrics))
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	r.GET("/", h.Root)
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	if cfg.Limiter != nil {
		api.Use(httpmiddleware.RateLimit(cfg.Limiter))
	}
	{
		api.POST("/members", h.RegisterMember)
		api.GET("/members", h.ListMembers)
		api.GET("/members/:id", h.GetMember)

		api.POST("/attendance", h.RecordAttendance)
		api.GET("/attendance/:date", h.AttendanceForDate)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}
