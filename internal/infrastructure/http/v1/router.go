package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool, serviceName string) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware(serviceName))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/tile/:z/:x/:y", handler.Tile)

	anim := v1.Group("/animation")
	anim.GET("", handler.Status)
	anim.POST("/fetch", handler.Fetch)
	anim.POST("/start", handler.Start)
	anim.POST("/pause", handler.Pause)
	anim.POST("/cancel", handler.Cancel)
	anim.POST("/frame", handler.Frame)
	anim.PUT("/templates", handler.Templates)
	anim.GET("/can-animate", handler.CanAnimate)
	anim.GET("/tiles", handler.CachedTiles)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), l))

		start := time.Now()

		c.Next()

		latency := time.Since(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
