package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/m-mizutani/masq"
	"github.com/urfave/cli/v3"
)

// logging 是日志相关的命令行选项；日志只写 stderr，stdout 留给进度输出。
type logging struct {
	Level string
	JSON  bool
}

func (c *logging) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "日志级别（debug, info, warn, error）",
			Value:       "warn",
			Destination: &c.Level,
			Sources:     cli.EnvVars("NFLGB_LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:        "log-json",
			Usage:       "以 JSON 格式输出日志",
			Destination: &c.JSON,
			Sources:     cli.EnvVars("NFLGB_LOG_JSON"),
		},
	}
}

// Configure 返回写到 w 的 logger；Password 与 ProxyURL（可能带凭据）在日志里会被遮蔽。
func (c *logging) Configure(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: masq.New(masq.WithFieldName("Password"), masq.WithFieldName("ProxyURL")),
	}

	var handler slog.Handler
	if c.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
