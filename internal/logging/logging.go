// Package logging 按配置构造进程级 slog.Logger。
package logging

import (
	"io"
	"log/slog"
	"strings"

	"craftcv/internal/config"
)

// New 返回写往 w 的 logger，并附带 service 字段。
func New(cfg config.LogConfig, service string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", service))
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
