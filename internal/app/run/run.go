package run

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/John-Robertt/nflgb/internal/browser"
	"github.com/John-Robertt/nflgb/internal/config"
	"github.com/John-Robertt/nflgb/internal/domain"
	"github.com/John-Robertt/nflgb/internal/infra/fsx"
	"github.com/John-Robertt/nflgb/internal/infra/poll"
	"github.com/John-Robertt/nflgb/internal/locate"
	"github.com/John-Robertt/nflgb/internal/page"
)

// 阶段名（出现在日志、Observer 事件与 report.stage 中）。
const (
	StageLogin     = "login"
	StageConsent   = "consent"
	StageWeek      = "week"
	StageDump      = "dump"
	StageEnumerate = "enumerate"
	StageDownload  = "download"
)

// Browser 是会话流程需要的全部浏览器能力；生产实现是 *browser.Session。
type Browser interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	SendKeys(ctx context.Context, what, text string, sels ...browser.Selector) error
	Click(ctx context.Context, what string, sels ...browser.Selector) error
	ClickIfPresent(ctx context.Context, sel browser.Selector) (bool, error)
	PageHTML(ctx context.Context) (string, error)
	ClickGamebook(ctx context.Context, panelClass, buttonXPath string, idx int) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

var _ Browser = (*browser.Session)(nil)

// Execute 按固定顺序驱动一次会话，并返回 RunReport。
//
// 约束：
// - 可容忍的缺失（条款页、REG 页签、周次按钮、面板加载、单场下载未出现）只记 warning
// - 其余错误在第一次出现时中断整个流程：记录 stage/error，并尽力截图到 DebugDir
// - 不负责关闭浏览器（由调用方 defer）
func Execute(ctx context.Context, cfg config.Config, b Browser, obs Observer, log *slog.Logger) domain.RunReport {
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = slog.Default()
	}

	rr := domain.RunReport{
		Week:      cfg.Week,
		Dir:       cfg.OutputDir,
		StartedAt: time.Now().UTC(),
		Games:     make([]domain.GameResult, 0, 16),
	}
	obs.OnStart(cfg)

	d := &driver{cfg: cfg, b: b, obs: obs, log: log, rr: &rr}
	if stage, err := d.run(ctx); err != nil {
		log.Error("运行中断", slog.String("stage", stage), slog.Any("error", err))
		rr.Stage = stage
		rr.Error = err.Error()
		rr.Screenshot = d.screenshot(ctx)
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

type driver struct {
	cfg config.Config
	b   Browser
	obs Observer
	log *slog.Logger
	rr  *domain.RunReport

	total int
}

type stage struct {
	name string
	fn   func(ctx context.Context) (map[string]any, error)
}

func (d *driver) run(ctx context.Context) (string, error) {
	stages := []stage{
		{StageLogin, d.login},
		{StageConsent, d.consent},
		{StageWeek, d.selectWeek},
		{StageDump, d.dumpPageSource},
		{StageEnumerate, d.enumerate},
		{StageDownload, d.downloadAll},
	}
	for _, st := range stages {
		started := time.Now()
		fields, err := st.fn(ctx)
		if err != nil {
			return st.name, err
		}
		d.obs.OnPhaseDone(st.name, fields, time.Since(started))
	}
	return "", nil
}

func (d *driver) login(ctx context.Context) (map[string]any, error) {
	if err := d.b.Navigate(ctx, d.cfg.LoginURL); err != nil {
		return nil, err
	}
	if err := d.b.SendKeys(ctx, "用户名输入框", d.cfg.Username, usernameSelectors...); err != nil {
		return nil, goerr.Wrap(err, "填写用户名失败")
	}
	if err := d.b.SendKeys(ctx, "密码输入框", d.cfg.Password, passwordSelectors...); err != nil {
		return nil, goerr.Wrap(err, "填写密码失败")
	}
	if err := d.b.Click(ctx, "登录按钮", submitSelectors...); err != nil {
		return nil, goerr.Wrap(err, "点击登录按钮失败")
	}

	err := poll.Until(ctx, d.cfg.Timeout, d.cfg.PollInterval, func(c context.Context) (bool, error) {
		u, err := d.b.CurrentURL(c)
		if err != nil {
			return false, err
		}
		return u != d.cfg.LoginURL, nil
	})
	if err := d.tolerate(ctx, err, "登录后页面未跳转，继续"); err != nil {
		return nil, err
	}

	u, err := d.b.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	d.log.Info("已登录", slog.String("url", u))
	return map[string]any{"url": u}, nil
}

// consent 只在被引导到条款页时生效。
func (d *driver) consent(ctx context.Context) (map[string]any, error) {
	u, err := d.b.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(u, termsMarker) {
		return map[string]any{"accepted": false}, nil
	}

	d.log.Info("检测到条款页，自动接受")
	if err := d.b.Navigate(ctx, d.cfg.AcceptTermsURL); err != nil {
		return nil, goerr.Wrap(err, "接受条款失败")
	}
	err = poll.Until(ctx, d.cfg.Timeout, d.cfg.PollInterval, func(c context.Context) (bool, error) {
		u, err := d.b.CurrentURL(c)
		if err != nil {
			return false, err
		}
		return !strings.Contains(u, termsMarker), nil
	})
	if err := d.tolerate(ctx, err, "接受条款后仍停留在条款页，继续"); err != nil {
		return nil, err
	}
	return map[string]any{"accepted": true}, nil
}

func (d *driver) selectWeek(ctx context.Context) (map[string]any, error) {
	reg, err := d.b.ClickIfPresent(ctx, regTabSelector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.log.Warn("检查 REG 页签失败", slog.Any("error", err))
	}
	if reg {
		d.log.Info("已切换到 REG 页签")
	} else {
		d.log.Info("REG 页签已选中或不存在")
	}

	selected := true
	err = d.b.Click(ctx, "周次按钮", weekSelector(d.cfg.Week))
	if err != nil {
		if e := d.tolerate(ctx, err, "未找到周次按钮，使用当前页面继续"); e != nil {
			return nil, e
		}
		selected = false
	} else {
		d.log.Info("已选择周次", slog.Int("week", d.cfg.Week))
	}

	err = poll.Until(ctx, d.cfg.Timeout, d.cfg.PollInterval, func(c context.Context) (bool, error) {
		html, err := d.b.PageHTML(c)
		if err != nil {
			return false, err
		}
		return page.CountGames(html) > 0, nil
	})
	if err := d.tolerate(ctx, err, "等待比赛面板超时"); err != nil {
		return nil, err
	}
	return map[string]any{"week": d.cfg.Week, "selected": selected}, nil
}

func (d *driver) dumpPageSource(ctx context.Context) (map[string]any, error) {
	html, err := d.b.PageHTML(ctx)
	if err != nil {
		return nil, err
	}
	if err := fsx.WriteFileAtomicReplace(d.cfg.DebugDir, config.PageSourceName, []byte(html)); err != nil {
		return nil, goerr.Wrap(err, "保存页面源码失败", goerr.V("dir", d.cfg.DebugDir))
	}
	p := filepath.Join(d.cfg.DebugDir, config.PageSourceName)
	d.log.Debug("已保存页面源码", slog.String("path", p))
	return map[string]any{"file": p}, nil
}

func (d *driver) enumerate(ctx context.Context) (map[string]any, error) {
	games, err := d.games(ctx)
	if err != nil {
		return nil, err
	}
	d.total = len(games)
	d.rr.Summary.Found = d.total
	d.log.Info("找到比赛", slog.Int("games", d.total))
	return map[string]any{"games": d.total}, nil
}

// downloadAll 逐场处理；每次迭代重新读取页面，旧的解析结果不跨迭代使用。
func (d *driver) downloadAll(ctx context.Context) (map[string]any, error) {
	for i := 0; i < d.total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		started := time.Now()

		games, err := d.games(ctx)
		if err != nil {
			return nil, err
		}
		if i >= len(games) {
			d.log.Warn("比赛面板变少，提前结束", slog.Int("index", i), slog.Int("games", len(games)))
			break
		}

		res, err := d.downloadOne(ctx, games[i])
		d.rr.Games = append(d.rr.Games, res)
		d.obs.OnGameDone(i+1, d.total, res, time.Since(started))
		if err != nil {
			return nil, err
		}
	}

	counts := map[string]int{}
	for _, g := range d.rr.Games {
		counts[g.Status]++
	}
	return map[string]any{
		"downloaded": counts[domain.StatusDownloaded],
		"skipped":    counts[domain.StatusSkipped],
		"missing":    counts[domain.StatusMissing],
	}, nil
}

// downloadOne 返回的 error 非空时，整个流程中断（res 仍会写入报告）。
func (d *driver) downloadOne(ctx context.Context, g domain.GamePanel) (domain.GameResult, error) {
	res := domain.GameResult{Index: g.Index, Name: g.Name()}
	log := d.log.With(slog.Int("game", g.Index+1), slog.String("name", res.Name))
	if !g.HasTeams() {
		log.Info("未能提取球队代码，按序号命名")
	}

	if !g.HasGamebook {
		log.Info("没有 GAME BOOK 按钮，跳过")
		return skipped(res), nil
	}

	dir := d.cfg.OutputDir
	before, err := fsx.Snapshot(dir, config.PDFExt)
	if err != nil {
		return failed(res, domain.ErrCodeIOFailed, err), goerr.Wrap(err, "读取下载目录失败", goerr.V("dir", dir))
	}

	clicked, err := d.b.ClickGamebook(ctx, page.PanelClass, gamebookXPath, g.Index)
	if err != nil {
		return failed(res, domain.ErrCodeClickFailed, err), goerr.Wrap(err, "点击 GAME BOOK 失败", goerr.V("game", res.Name))
	}
	if !clicked {
		// 解析时存在、点击时已不在页面上。
		log.Info("GAME BOOK 按钮已消失，跳过")
		return skipped(res), nil
	}
	log.Info("已点击 GAME BOOK，等待下载")

	// snapErr 只保留最近一次读取目录的错误；偶发失败后读取成功即清空。
	var fresh []string
	var snapErr error
	err = poll.Until(ctx, d.cfg.DownloadTimeout, d.cfg.PollInterval, func(context.Context) (bool, error) {
		after, err := fsx.Snapshot(dir, config.PDFExt)
		if err != nil {
			snapErr = err
			return false, nil
		}
		snapErr = nil
		fresh = fsx.NewFiles(before, after)
		return len(fresh) > 0, nil
	})
	if errors.Is(err, poll.ErrTimeout) && ctx.Err() == nil && snapErr != nil {
		log.Error("等待下载时无法读取下载目录", slog.Any("error", snapErr))
		return failed(res, domain.ErrCodeIOFailed, snapErr), goerr.Wrap(snapErr, "读取下载目录失败", goerr.V("dir", dir))
	}
	if errors.Is(err, poll.ErrTimeout) && ctx.Err() == nil {
		log.Warn("未找到下载的文件", slog.Duration("waited", d.cfg.DownloadTimeout))
		res.Status = domain.StatusMissing
		res.ErrorCode = domain.ErrCodeNoNewFile
		res.ErrorMsg = err.Error()
		return res, nil
	}
	if err != nil {
		return failed(res, domain.ErrCodeIOFailed, err), err
	}

	if len(fresh) > 1 {
		log.Warn("出现多个新文件，取字典序第一个", slog.Any("files", fresh))
	}
	name, err := fsx.RenameUnique(dir, fresh[0], res.Name, config.PDFExt)
	if err != nil {
		return failed(res, domain.ErrCodeRenameFailed, err),
			goerr.Wrap(err, "重命名失败", goerr.V("src", fresh[0]), goerr.V("name", res.Name))
	}

	res.Status = domain.StatusDownloaded
	res.File = name
	log.Info("已保存", slog.String("file", name))
	return res, nil
}

func (d *driver) games(ctx context.Context) ([]domain.GamePanel, error) {
	html, err := d.b.PageHTML(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "读取赛程页失败")
	}
	games, err := page.ParseGames(html)
	if err != nil {
		return nil, goerr.Wrap(err, "解析赛程页失败")
	}
	return games, nil
}

// tolerate 把“等不到/找不到”降级为 warning；ctx 取消与其他错误原样返回。
func (d *driver) tolerate(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, poll.ErrTimeout) || locate.IsNotFound(err) {
		d.log.Warn(msg, slog.Any("error", err))
		return nil
	}
	return err
}

// screenshot 尽力截图；失败只记日志，返回写入的路径（失败为空串）。
func (d *driver) screenshot(ctx context.Context) string {
	buf, err := d.b.Screenshot(context.WithoutCancel(ctx))
	if err != nil {
		d.log.Warn("截图失败", slog.Any("error", err))
		return ""
	}
	if err := fsx.WriteFileAtomicReplace(d.cfg.DebugDir, config.ScreenshotName, buf); err != nil {
		d.log.Warn("保存截图失败", slog.Any("error", err))
		return ""
	}
	p := filepath.Join(d.cfg.DebugDir, config.ScreenshotName)
	d.log.Info("已保存截图", slog.String("path", p))
	return p
}

func skipped(res domain.GameResult) domain.GameResult {
	res.Status = domain.StatusSkipped
	res.ErrorCode = domain.ErrCodeNoGamebook
	res.ErrorMsg = "面板内没有 GAME BOOK 按钮"
	return res
}

func failed(res domain.GameResult, code string, err error) domain.GameResult {
	res.Status = domain.StatusFailed
	res.ErrorCode = code
	res.ErrorMsg = err.Error()
	return res
}
