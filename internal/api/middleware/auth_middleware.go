package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"craftcv/internal/auth"
)

// 上下文键。
const (
	UserIDKey             = "userID"
	MustChangePasswordKey = "mustChangePassword"
)

// AccessTokenParser 校验访问令牌，由 *auth.TokenService 实现。
type AccessTokenParser interface {
	ParseAccess(raw string) (*auth.Claims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// BearerToken 取出 Authorization 头中的 Bearer 令牌。
func BearerToken(c *gin.Context) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware 校验访问令牌，把 userID 与改密标记注入上下文。
func AuthMiddleware(tokens AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := BearerToken(c)
		if raw == "" {
			abortUnauthorized(c)
			return
		}
		claims, err := tokens.ParseAccess(raw)
		if err != nil {
			LoggerFromContext(c).Debug("access token rejected", "error", err)
			abortUnauthorized(c)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(MustChangePasswordKey, claims.MustChangePassword)
		c.Next()
	}
}

// RequirePasswordChanged 拒绝仍持有临时口令的账号。判断只依据令牌里的声明。
func RequirePasswordChanged() gin.HandlerFunc {
	return func(c *gin.Context) {
		if pending, _ := c.Get(MustChangePasswordKey); pending == true {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "password change required"})
			return
		}
		c.Next()
	}
}
