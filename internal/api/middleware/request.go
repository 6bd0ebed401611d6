package middleware

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationHeader 贯穿 API、任务载荷与推送消息。
const CorrelationHeader = "X-Correlation-ID"

type requestKey struct{}

type requestInfo struct {
	correlationID string
	logger        *slog.Logger
}

// 外部传入的 ID 只接受安全字符，其余情况重新生成。
var validCorrelationID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// RequestLogging 为每个请求确定 Correlation ID，构造请求级 logger，
// 并在结束时按状态码选择日志级别。skip 中的路径不记录完成日志。
func RequestLogging(base *slog.Logger, skip ...string) gin.HandlerFunc {
	quiet := make(map[string]bool, len(skip))
	for _, p := range skip {
		quiet[p] = true
	}

	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationHeader)
		if !validCorrelationID.MatchString(id) {
			id = uuid.NewString()
		}
		c.Header(CorrelationHeader, id)

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		info := &requestInfo{
			correlationID: id,
			logger:        base.With(slog.String("correlation_id", id), slog.String("route", c.Request.Method+" "+route)),
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestKey{}, info))

		start := time.Now()
		c.Next()
		if quiet[route] {
			return
		}

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		info.logger.LogAttrs(c.Request.Context(), level, "request finished",
			slog.Int("status", status),
			slog.Duration("took", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

func infoFrom(c *gin.Context) (*requestInfo, bool) {
	info, ok := c.Request.Context().Value(requestKey{}).(*requestInfo)
	return info, ok
}

// GetCorrelationID 未经过 RequestLogging 时返回空串。
func GetCorrelationID(c *gin.Context) string {
	if info, ok := infoFrom(c); ok {
		return info.correlationID
	}
	return ""
}

func RequestLogger(c *gin.Context) (*slog.Logger, bool) {
	if info, ok := infoFrom(c); ok {
		return info.logger, true
	}
	return nil, false
}

func LoggerFromContext(c *gin.Context) *slog.Logger {
	if logger, ok := RequestLogger(c); ok {
		return logger
	}
	return slog.Default()
}
