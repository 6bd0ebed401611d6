package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"craftcv/internal/api/middleware"
	"craftcv/internal/database"
)

// userIDFromContext 读取 AuthMiddleware 写入的用户 ID。
func userIDFromContext(c *gin.Context) (uint, bool) {
	value, _ := c.Get(middleware.UserIDKey)
	id, ok := value.(uint)
	return id, ok && id != 0
}

// requestScope 取出登录用户与其组织，缺失时直接写出 401/403。
func requestScope(c *gin.Context) (uint, *database.Organization, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, nil, false
	}
	org, ok := middleware.OrganizationFromContext(c)
	if !ok {
		Forbidden(c, "organization not found")
		return 0, nil, false
	}
	return userID, org, true
}

func loggerFor(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := middleware.RequestLogger(c); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
