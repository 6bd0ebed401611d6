package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"craftcv/internal/database"
	"craftcv/internal/store"
)

const OrganizationKey = "organization"

type organizationFinder interface {
	ByUser(ctx context.Context, userID uint) (*database.Organization, error)
}

// OrgContextMiddleware 根据登录用户加载其组织并注入上下文，须放在 AuthMiddleware 之后。
func OrgContextMiddleware(orgs organizationFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := c.Get(UserIDKey)
		if !ok {
			abortUnauthorized(c)
			return
		}
		uid, ok := userID.(uint)
		if !ok {
			abortUnauthorized(c)
			return
		}

		org, err := orgs.ByUser(c.Request.Context(), uid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "organization not found"})
				return
			}
			LoggerFromContext(c).Error("load organization failed", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(OrganizationKey, org)
		c.Next()
	}
}

// OrganizationFromContext 取出当前请求的组织。
func OrganizationFromContext(c *gin.Context) (*database.Organization, bool) {
	value, ok := c.Get(OrganizationKey)
	if !ok {
		return nil, false
	}
	org, ok := value.(*database.Organization)
	return org, ok && org != nil
}
