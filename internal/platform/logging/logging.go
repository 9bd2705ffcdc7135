// Package logging 提供基于 log/slog 的结构化日志。
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config 是日志配置。
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|text
	Output io.Writer
}

// New 按配置构造 slog.Logger。默认 info 级别、text 输出到 stderr。
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// Discard 返回丢弃全部输出的 logger，测试用。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
