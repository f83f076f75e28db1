package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/nflgb/internal/app/run"
	"github.com/John-Robertt/nflgb/internal/config"
	"github.com/John-Robertt/nflgb/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 把 run 的事件渲染成面向人的进度行。
//
// 设计目标：
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单场下载等待较久时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total      int
	done       int
	downloaded int
	skipped    int
	missing    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(cfg config.Config) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] 下载第 %d 周的 GAME BOOK\n", now.Format("15:04:05"), cfg.Week)
	fmt.Fprintln(p.w, "配置:")
	fmt.Fprintf(p.w, "  site: %s\n", hostOf(cfg.LoginURL))
	fmt.Fprintf(p.w, "  headless: %s\n", onOff(cfg.Headless))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(cfg.ProxyURL))
	fmt.Fprintf(p.w, "  timeout: %s (download %s)\n", cfg.Timeout, cfg.DownloadTimeout)
	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  pdf: %s\n", cfg.OutputDir)
	fmt.Fprintf(p.w, "  debug: %s\n", cfg.DebugDir)
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case run.StageLogin:
		fmt.Fprintf(p.w, "登录: %s (%s)\n", truncate(stringField(fields, "url"), 120), formatShortDuration(dur))
	case run.StageConsent:
		if boolField(fields, "accepted") {
			fmt.Fprintf(p.w, "条款: 已接受 (%s)\n", formatShortDuration(dur))
		}
	case run.StageWeek:
		state := "已选择"
		if !boolField(fields, "selected") {
			state = "未找到，使用当前页面"
		}
		fmt.Fprintf(p.w, "周次: %d %s (%s)\n", intField(fields, "week"), state, formatShortDuration(dur))
	case run.StageDump:
		fmt.Fprintf(p.w, "页面源码: %s\n", stringField(fields, "file"))
	case run.StageEnumerate:
		p.total = intField(fields, "games")
		fmt.Fprintf(p.w, "比赛: %d\n\n", p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case run.StageDownload:
		fmt.Fprintf(p.w, "\n下载: downloaded=%d skipped=%d missing=%d (%s)\n",
			intField(fields, "downloaded"), intField(fields, "skipped"), intField(fields, "missing"), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnGameDone(idx, total int, res domain.GameResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	fmt.Fprintln(p.w, formatGameLine(idx, total, res, dur))
	switch res.Status {
	case domain.StatusDownloaded:
		p.downloaded++
	case domain.StatusSkipped:
		p.skipped++
	case domain.StatusMissing:
		p.missing++
	}

	p.lastPrinted = time.Now()

	// 最后一场完成：停止 ticker，避免在摘要之后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Stop 停止 keepalive（流程中断时 OnGameDone 不会走到最后一场）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 10 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d downloaded=%d skipped=%d missing=%d elapsed=%s\n",
						p.done, p.total, p.downloaded, p.skipped, p.missing, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func formatGameLine(idx, total int, res domain.GameResult, dur time.Duration) string {
	switch res.Status {
	case domain.StatusDownloaded:
		return fmt.Sprintf("[%d/%d] %s OK -> %s (%s)", idx, total, res.Name, res.File, formatShortDuration(dur))
	case domain.StatusSkipped:
		return fmt.Sprintf("[%d/%d] %s SKIP (没有 GAME BOOK)", idx, total, res.Name)
	case domain.StatusMissing:
		return fmt.Sprintf("[%d/%d] %s MISSING 未找到下载的文件 (%s)", idx, total, res.Name, formatShortDuration(dur))
	default:
		return fmt.Sprintf("[%d/%d] %s FAIL %s: %s (%s)",
			idx, total, res.Name, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return truncate(raw, 120)
	}
	return u.Host
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}

func boolField(fields map[string]any, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func stringField(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}
