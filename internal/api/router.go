package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"craftcv/internal/api/middleware"
	"craftcv/internal/config"
	"craftcv/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎，挂载通用中间件、健康检查与指标端点。
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogging(logger, "/health", "/ready", "/metrics"),
		metrics.GinMiddleware(),
	)

	if cfg != nil && len(cfg.API.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.API.AllowedOrigins
		corsCfg.AllowCredentials = true
		corsCfg.AddAllowHeaders("Authorization", middleware.CorrelationHeader)
		corsCfg.AddExposeHeaders(middleware.CorrelationHeader)
		router.Use(cors.New(corsCfg))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
