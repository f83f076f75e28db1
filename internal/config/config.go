package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/nflgb/internal/week"
)

const (
	// ErrCodeInvalid 表示配置字段不合法（缺失/格式错误/取值越界）。
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultLoginURL       = "https://nflgsis.com/GameStatsLive/Auth/?ReturnUrl=%2FGameStatsLive%2F"
	DefaultAcceptTermsURL = "https://nflgsis.com/GameStatsLive/Auth/AcceptTermsAndConditions/"
	DefaultUsername       = "media"
	DefaultPassword       = "media"

	// DefaultTimeout 是所有“等待元素/页面状态”共用的上限。
	DefaultTimeout = 10 * time.Second
	// DefaultDownloadTimeout 是单个 GAME BOOK 点击后等待新 PDF 出现的上限。
	DefaultDownloadTimeout = 30 * time.Second
	// DefaultPollInterval 是轮询间隔。
	DefaultPollInterval = 250 * time.Millisecond

	PageSourceName = "page_source.html"
	ScreenshotName = "error_screenshot.png"
	ReportName     = "report.json"
	PDFExt         = ".pdf"
)

// Config 是会话驱动所需的全部输入。
// 生产值由 Default 给出；测试直接构造（例如指向 httptest 的 mock 站点）。
type Config struct {
	Week int

	Username string
	Password string

	LoginURL       string
	AcceptTermsURL string

	Timeout         time.Duration
	DownloadTimeout time.Duration
	PollInterval    time.Duration

	// OutputDir 是 PDF 下载与重命名目录（<cwd>/w<N>）。
	OutputDir string
	// DebugDir 存放 page_source.html 与 error_screenshot.png（cwd）。
	DebugDir string

	Headless bool
	// ExecPath 为空时由 chromedp 自动查找 Chrome。
	ExecPath string
	// ProxyURL 为空表示直连；支持 http/https/socks5。
	ProxyURL string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：%s 无效：%v", e.Code, e.Field, e.Err)
	}
	return fmt.Sprintf("%s：%s 无效", e.Code, e.Field)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// WeekDirName 返回周目录名（w<N>）。
func WeekDirName(w int) string {
	return fmt.Sprintf("w%d", w)
}

// Default 返回生产配置：固定站点地址与账号、统一超时、输出到 <cwd>/w<N>。
func Default(cwd string, w int) Config {
	cwd = filepath.Clean(cwd)
	return Config{
		Week:            w,
		Username:        DefaultUsername,
		Password:        DefaultPassword,
		LoginURL:        DefaultLoginURL,
		AcceptTermsURL:  DefaultAcceptTermsURL,
		Timeout:         DefaultTimeout,
		DownloadTimeout: DefaultDownloadTimeout,
		PollInterval:    DefaultPollInterval,
		OutputDir:       filepath.Join(cwd, WeekDirName(w)),
		DebugDir:        cwd,
		Headless:        true,
	}
}

// Validate 做最小校验；不校验 Week 的范围（显式指定的周次原样使用）。
func (c Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return &Error{Code: ErrCodeInvalid, Field: "username", Err: errors.New("不能为空")}
	}
	if err := validateURL(c.LoginURL); err != nil {
		return &Error{Code: ErrCodeInvalid, Field: "login_url", Err: err}
	}
	if err := validateURL(c.AcceptTermsURL); err != nil {
		return &Error{Code: ErrCodeInvalid, Field: "accept_terms_url", Err: err}
	}
	if c.Timeout <= 0 {
		return &Error{Code: ErrCodeInvalid, Field: "timeout", Err: fmt.Errorf("必须大于 0，实际 %s", c.Timeout)}
	}
	if c.DownloadTimeout <= 0 {
		return &Error{Code: ErrCodeInvalid, Field: "download_timeout", Err: fmt.Errorf("必须大于 0，实际 %s", c.DownloadTimeout)}
	}
	if c.PollInterval < 0 {
		return &Error{Code: ErrCodeInvalid, Field: "poll_interval", Err: fmt.Errorf("不能为负，实际 %s", c.PollInterval)}
	}
	if !filepath.IsAbs(c.OutputDir) {
		return &Error{Code: ErrCodeInvalid, Field: "output_dir", Err: fmt.Errorf("必须是绝对路径：%q", c.OutputDir)}
	}
	if !filepath.IsAbs(c.DebugDir) {
		return &Error{Code: ErrCodeInvalid, Field: "debug_dir", Err: fmt.Errorf("必须是绝对路径：%q", c.DebugDir)}
	}
	if err := validateProxyURL(c.ProxyURL); err != nil {
		return &Error{Code: ErrCodeInvalid, Field: "proxy_url", Err: err}
	}
	return nil
}

// ResolveWeek 决定本次运行的周次：显式指定优先，否则按当前日期计算。
func ResolveWeek(now time.Time, override *int) int {
	return week.Resolve(now, week.SeasonStart, override, week.Max)
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}

func validateProxyURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("只支持 http/https/socks5：%q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}
