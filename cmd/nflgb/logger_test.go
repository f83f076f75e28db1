package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/John-Robertt/nflgb/internal/config"
)

func TestLogging_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	l := (&logging{Level: "debug", JSON: true}).Configure(&buf)

	cfg := config.Default("/data", 1)
	cfg.Password = "s3cret-pass"
	cfg.ProxyURL = "http://user:pw@127.0.0.1:8080"
	l.Debug("生效配置", slog.Any("config", cfg))

	out := buf.String()
	if !strings.Contains(out, "生效配置") {
		t.Fatalf("期望输出日志，实际 %q", out)
	}
	if strings.Contains(out, "s3cret-pass") || strings.Contains(out, "user:pw") {
		t.Fatalf("敏感字段未被遮蔽：%s", out)
	}
}

func TestLogging_DefaultLevelWarn(t *testing.T) {
	var buf bytes.Buffer
	l := (&logging{}).Configure(&buf)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("默认级别应为 warn：%q", buf.String())
	}
}
