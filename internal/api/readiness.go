package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadinessProbe 检查一个下游依赖是否可用。
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadinessHandler GET /ready
// 任一依赖失败返回 503，并列出每个依赖的结果。
func ReadinessHandler(timeout time.Duration, probes ...ReadinessProbe) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(probes))
		for _, p := range probes {
			if err := p.Check(ctx); err != nil {
				loggerFor(c, nil).Warn("readiness probe failed", "dependency", p.Name, "error", err)
				results[p.Name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[p.Name] = "ok"
		}
		c.JSON(status, gin.H{"ready": status == http.StatusOK, "dependencies": results})
	}
}
