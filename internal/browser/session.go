package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/m-mizutani/goerr/v2"

	"github.com/John-Robertt/nflgb/internal/infra/poll"
	"github.com/John-Robertt/nflgb/internal/locate"
)

// Options 控制浏览器会话。
type Options struct {
	Headless bool
	ExecPath string
	ProxyURL string

	// DownloadDir 必须是绝对路径；所有下载都落到这里。
	DownloadDir string

	// Timeout 是单次元素等待的上限；导航使用 3 倍 Timeout。
	Timeout      time.Duration
	PollInterval time.Duration

	Logger *slog.Logger
}

// Session 封装一个 chromedp 浏览器标签页。
//
// 约束：
// - 所有方法串行调用（单标签页、单线程流程）
// - 每个等待都有上限；超时以错误返回，由上层决定容忍还是中断
// - Close 必须在所有退出路径上调用
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	profileDir  string

	opts Options
	log  *slog.Logger
}

// Open 启动 Chrome 并把下载目录指向 opts.DownloadDir。
//
// 每个会话使用独立的临时 profile（PDF 一律下载，不在浏览器内打开），Close 时删除。
func Open(parent context.Context, opts Options) (*Session, error) {
	if opts.Timeout <= 0 {
		return nil, goerr.New("timeout 必须大于 0")
	}
	if opts.DownloadDir == "" {
		return nil, goerr.New("download dir 不能为空")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	profileDir, err := newProfile(opts.DownloadDir)
	if err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1400, 1000),
		chromedp.UserDataDir(profileDir),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if os.Geteuid() == 0 {
		// root 下 Chrome 拒绝在沙箱里启动（常见于容器）。
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyURL))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...), slog.String("src", "chromedp"))
		}),
	)

	// 首次 Run 启动浏览器；这里不能套超时 ctx，否则超时取消会连带关闭浏览器。
	err = chromedp.Run(tabCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(opts.DownloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		cancelTab()
		cancelAlloc()
		_ = os.RemoveAll(profileDir)
		return nil, goerr.Wrap(err, "启动浏览器失败", goerr.V("download_dir", opts.DownloadDir))
	}

	log.Debug("浏览器已启动", slog.Bool("headless", opts.Headless), slog.String("download_dir", opts.DownloadDir))
	return &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		profileDir:  profileDir,
		opts:        opts,
		log:         log,
	}, nil
}

// Close 关闭浏览器（幂等）。
func (s *Session) Close() error {
	if s == nil || s.cancelTab == nil {
		return nil
	}
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	// cancelAlloc 会等待 Chrome 进程退出，之后才能删除 profile 目录。
	s.cancelAlloc()
	s.cancelTab = nil
	if rmErr := os.RemoveAll(s.profileDir); rmErr != nil {
		s.log.Warn("删除浏览器配置目录失败", slog.String("dir", s.profileDir), slog.Any("error", rmErr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// op 派生一次操作的 ctx：以浏览器 ctx 为父（chromedp 要求），同时跟随调用方 ctx 的取消。
func (s *Session) op(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	tctx, cancel := s.op(ctx, 3*s.opts.Timeout)
	defer cancel()
	s.log.Debug("navigate", slog.String("url", url))
	if err := chromedp.Run(tctx, chromedp.Navigate(url)); err != nil {
		return goerr.Wrap(err, "打开页面失败", goerr.V("url", url))
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	tctx, cancel := s.op(ctx, s.opts.Timeout)
	defer cancel()
	var u string
	if err := chromedp.Run(tctx, chromedp.Location(&u)); err != nil {
		return "", goerr.Wrap(err, "读取当前地址失败")
	}
	return u, nil
}

// SendKeys 按 sels 的顺序定位输入框（每个策略最多等待 Timeout），第一个命中者输入 text。
func (s *Session) SendKeys(ctx context.Context, what, text string, sels ...Selector) error {
	strategies := make([]locate.Strategy[struct{}], 0, len(sels))
	for _, sel := range sels {
		strategies = append(strategies, locate.Strategy[struct{}]{
			Name: sel.String(),
			Find: func(c context.Context) (struct{}, error) {
				tctx, cancel := s.op(c, s.opts.Timeout)
				defer cancel()
				return struct{}{}, chromedp.Run(tctx,
					chromedp.WaitReady(sel.Expr, sel.by()),
					chromedp.SendKeys(sel.Expr, text, sel.by()),
				)
			},
		})
	}
	_, err := locate.First(ctx, what, strategies...)
	return err
}

// Click 按 sels 的顺序轮询定位并用 JS 点击；每个策略最多等待 Timeout。
func (s *Session) Click(ctx context.Context, what string, sels ...Selector) error {
	strategies := make([]locate.Strategy[struct{}], 0, len(sels))
	for _, sel := range sels {
		strategies = append(strategies, locate.Strategy[struct{}]{
			Name: sel.String(),
			Find: func(c context.Context) (struct{}, error) {
				return struct{}{}, poll.Until(c, s.opts.Timeout, s.opts.PollInterval, func(pc context.Context) (bool, error) {
					return s.evalBool(pc, sel.clickJS())
				})
			},
		})
	}
	_, err := locate.First(ctx, what, strategies...)
	return err
}

// ClickIfPresent 只检查一次：元素存在则点击并返回 true。
func (s *Session) ClickIfPresent(ctx context.Context, sel Selector) (bool, error) {
	return s.evalBool(ctx, sel.clickJS())
}

// PageHTML 返回当前 DOM 的完整 HTML 快照。
func (s *Session) PageHTML(ctx context.Context) (string, error) {
	tctx, cancel := s.op(ctx, s.opts.Timeout)
	defer cancel()
	var html string
	if err := chromedp.Run(tctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", goerr.Wrap(err, "读取页面 HTML 失败")
	}
	return html, nil
}

// ClickGamebook 点击第 idx 个比赛面板里的 GAME BOOK；按钮不存在时返回 false（不是错误）。
func (s *Session) ClickGamebook(ctx context.Context, panelClass, buttonXPath string, idx int) (bool, error) {
	return s.evalBool(ctx, gamebookJS(panelClass, buttonXPath, idx))
}

// Screenshot 截取当前视口。
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	tctx, cancel := s.op(ctx, s.opts.Timeout)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, goerr.Wrap(err, "截图失败")
	}
	return buf, nil
}

func (s *Session) evalBool(ctx context.Context, js string) (bool, error) {
	tctx, cancel := s.op(ctx, s.opts.Timeout)
	defer cancel()
	var ok bool
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}
