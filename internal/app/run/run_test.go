package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/nflgb/internal/browser"
	"github.com/John-Robertt/nflgb/internal/config"
	"github.com/John-Robertt/nflgb/internal/domain"
	"github.com/John-Robertt/nflgb/internal/locate"
)

const (
	testLoginURL  = "https://gsis.test/Auth/?ReturnUrl=%2F"
	testTermsURL  = "https://gsis.test/Auth/TermsAndConditions/"
	testAcceptURL = "https://gsis.test/Auth/AcceptTermsAndConditions/"
	testHomeURL   = "https://gsis.test/GameStatsLive/"
)

// 两场比赛：SF@KC 有 GAME BOOK；BUF@MIA 没有。
const twoGamesHTML = `<html><body>
<div class="gamePanelLarge">
  <div class="clubRow possession teamSF"></div>
  <div class="clubRow teamKC"></div>
  <a class="btn reports" href="#">GAME BOOK</a>
</div>
<div class="gamePanelLarge">
  <div class="clubRow teamBUF"></div>
  <div class="clubRow teamMIA"></div>
  <a class="btn reports" href="#">PLAY BY PLAY</a>
</div>
</body></html>`

// stubBrowser 模拟站点：登录后跳转、可选条款页、点击 GAME BOOK 时往下载目录写文件。
type stubBrowser struct {
	dir string

	url  string
	html string

	termsAfterLogin bool
	weekMissing     bool
	// downloads：面板序号 -> 点击后“下载完成”的文件名；缺失表示点击后什么都不发生。
	downloads map[int]string

	sendKeysErr error

	// dropDirOnClick：点击 GAME BOOK 后下载目录被删除，之后每次读取目录都失败。
	dropDirOnClick bool

	navigated []string
	typed     map[string]string
	clicked   []int
	shots     int
}

func (b *stubBrowser) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.navigated = append(b.navigated, url)
	if url == testAcceptURL {
		b.url = testHomeURL
		return nil
	}
	b.url = url
	return nil
}

func (b *stubBrowser) CurrentURL(ctx context.Context) (string, error) {
	return b.url, nil
}

func (b *stubBrowser) SendKeys(ctx context.Context, what, text string, sels ...browser.Selector) error {
	if b.sendKeysErr != nil {
		return b.sendKeysErr
	}
	if b.typed == nil {
		b.typed = map[string]string{}
	}
	b.typed[what] = text
	return nil
}

func (b *stubBrowser) Click(ctx context.Context, what string, sels ...browser.Selector) error {
	switch what {
	case "登录按钮":
		if b.termsAfterLogin {
			b.url = testTermsURL
		} else {
			b.url = testHomeURL
		}
	case "周次按钮":
		if b.weekMissing {
			return &locate.NotFoundError{What: what}
		}
	}
	return nil
}

func (b *stubBrowser) ClickIfPresent(ctx context.Context, sel browser.Selector) (bool, error) {
	return true, nil
}

func (b *stubBrowser) PageHTML(ctx context.Context) (string, error) {
	return b.html, nil
}

func (b *stubBrowser) ClickGamebook(ctx context.Context, panelClass, buttonXPath string, idx int) (bool, error) {
	b.clicked = append(b.clicked, idx)
	if b.dropDirOnClick {
		if err := os.RemoveAll(b.dir); err != nil {
			return false, err
		}
		return true, nil
	}
	if name, ok := b.downloads[idx]; ok {
		if err := os.WriteFile(filepath.Join(b.dir, name), []byte("%PDF-1.4"), 0o644); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (b *stubBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	b.shots++
	return []byte("png"), nil
}

type recordingObserver struct {
	started bool
	phases  []string
	games   []domain.GameResult
}

func (o *recordingObserver) OnStart(config.Config) { o.started = true }

func (o *recordingObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.phases = append(o.phases, name)
}

func (o *recordingObserver) OnGameDone(idx, total int, res domain.GameResult, dur time.Duration) {
	o.games = append(o.games, res)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	c := config.Default(root, 3)
	c.LoginURL = testLoginURL
	c.AcceptTermsURL = testAcceptURL
	c.Timeout = 200 * time.Millisecond
	c.DownloadTimeout = 100 * time.Millisecond
	c.PollInterval = 10 * time.Millisecond
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		t.Fatalf("创建输出目录失败：%v", err)
	}
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败：%v", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestExecute_DownloadAndSkip(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{
		dir:       cfg.OutputDir,
		html:      twoGamesHTML,
		downloads: map[int]string{0: "Gamebook_58172.pdf"},
	}
	obs := &recordingObserver{}

	rr := Execute(context.Background(), cfg, b, obs, discardLogger())

	if !rr.OK() {
		t.Fatalf("不期望中断：stage=%s err=%s", rr.Stage, rr.Error)
	}
	if got := listDir(t, cfg.OutputDir); !reflect.DeepEqual(got, []string{"SFKC.pdf"}) {
		t.Fatalf("期望只有 SFKC.pdf，实际 %v", got)
	}
	if !reflect.DeepEqual(b.clicked, []int{0}) {
		t.Fatalf("只应点击第 1 场，实际 %v", b.clicked)
	}
	if b.typed["用户名输入框"] != cfg.Username || b.typed["密码输入框"] != cfg.Password {
		t.Fatalf("账号输入不符合预期：%v", b.typed)
	}

	if len(rr.Games) != 2 {
		t.Fatalf("期望 2 条结果，实际 %d", len(rr.Games))
	}
	g0, g1 := rr.Games[0], rr.Games[1]
	if g0.Name != "SFKC" || g0.Status != domain.StatusDownloaded || g0.File != "SFKC.pdf" {
		t.Fatalf("第 1 场不符合预期：%+v", g0)
	}
	if g1.Name != "BUFMIA" || g1.Status != domain.StatusSkipped || g1.ErrorCode != domain.ErrCodeNoGamebook {
		t.Fatalf("第 2 场不符合预期：%+v", g1)
	}
	want := domain.ReportSummary{Found: 2, Downloaded: 1, Skipped: 1}
	if diff := cmp.Diff(want, rr.Summary); diff != "" {
		t.Fatalf("summary 不符合预期（-want +got）：\n%s", diff)
	}

	if _, err := os.Stat(filepath.Join(cfg.DebugDir, config.PageSourceName)); err != nil {
		t.Fatalf("期望保存页面源码：%v", err)
	}
	if b.shots != 0 {
		t.Fatalf("成功运行不应截图")
	}

	wantPhases := []string{StageLogin, StageConsent, StageWeek, StageDump, StageEnumerate, StageDownload}
	if !obs.started || !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：started=%v phases=%v", obs.started, obs.phases)
	}
	if len(obs.games) != 2 {
		t.Fatalf("期望 2 个比赛事件，实际 %d", len(obs.games))
	}
}

func TestExecute_NameCollision(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.OutputDir, "SFKC.pdf"), []byte("old"), 0o644); err != nil {
		t.Fatalf("写入旧文件失败：%v", err)
	}
	b := &stubBrowser{
		dir:       cfg.OutputDir,
		html:      twoGamesHTML,
		downloads: map[int]string{0: "download.pdf"},
	}

	rr := Execute(context.Background(), cfg, b, nil, discardLogger())

	if rr.Games[0].File != "SFKC_1.pdf" {
		t.Fatalf("期望 SFKC_1.pdf，实际 %+v", rr.Games[0])
	}
	old, err := os.ReadFile(filepath.Join(cfg.OutputDir, "SFKC.pdf"))
	if err != nil || string(old) != "old" {
		t.Fatalf("已有文件不应被覆盖：%q err=%v", old, err)
	}
}

func TestExecute_ConsentAccepted(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{
		dir:             cfg.OutputDir,
		html:            twoGamesHTML,
		termsAfterLogin: true,
		downloads:       map[int]string{0: "a.pdf"},
	}

	rr := Execute(context.Background(), cfg, b, nil, discardLogger())

	if !rr.OK() {
		t.Fatalf("不期望中断：%s", rr.Error)
	}
	if !reflect.DeepEqual(b.navigated, []string{testLoginURL, testAcceptURL}) {
		t.Fatalf("导航顺序不符合预期：%v", b.navigated)
	}
	if rr.Summary.Downloaded != 1 {
		t.Fatalf("期望下载 1 个，实际 %+v", rr.Summary)
	}
}

func TestExecute_NoConsentWhenNotRedirected(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{dir: cfg.OutputDir, html: twoGamesHTML}

	Execute(context.Background(), cfg, b, nil, discardLogger())

	for _, u := range b.navigated {
		if u == testAcceptURL {
			t.Fatalf("未进入条款页时不应访问接受地址：%v", b.navigated)
		}
	}
}

func TestExecute_WeekSelectorMissing_Continues(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{
		dir:         cfg.OutputDir,
		html:        twoGamesHTML,
		weekMissing: true,
		downloads:   map[int]string{0: "x.pdf"},
	}

	rr := Execute(context.Background(), cfg, b, nil, discardLogger())

	if !rr.OK() {
		t.Fatalf("找不到周次按钮应继续：%s", rr.Error)
	}
	if rr.Summary.Downloaded != 1 {
		t.Fatalf("期望仍然下载 1 个，实际 %+v", rr.Summary)
	}
}

func TestExecute_NoNewFile_Missing(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{dir: cfg.OutputDir, html: twoGamesHTML}

	rr := Execute(context.Background(), cfg, b, nil, discardLogger())

	if !rr.OK() {
		t.Fatalf("下载未出现不应中断流程：%s", rr.Error)
	}
	g := rr.Games[0]
	if g.Status != domain.StatusMissing || g.ErrorCode != domain.ErrCodeNoNewFile {
		t.Fatalf("期望 missing/no_new_file，实际 %+v", g)
	}
	if got := listDir(t, cfg.OutputDir); len(got) != 0 {
		t.Fatalf("目录应保持不变，实际 %v", got)
	}
}

func TestExecute_DownloadDirUnreadable_IOFailed(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{dir: cfg.OutputDir, html: twoGamesHTML, dropDirOnClick: true}

	rr := Execute(context.Background(), cfg, b, nil, discardLogger())

	if rr.OK() || rr.Stage != StageDownload {
		t.Fatalf("期望在 download 阶段中断，实际 stage=%q err=%q", rr.Stage, rr.Error)
	}
	if len(rr.Games) != 1 {
		t.Fatalf("期望 1 条结果，实际 %+v", rr.Games)
	}
	g := rr.Games[0]
	if g.Status != domain.StatusFailed || g.ErrorCode != domain.ErrCodeIOFailed {
		t.Fatalf("期望 failed/io_failed，实际 %+v", g)
	}
	if rr.Summary.Missing != 0 || rr.Summary.Failed != 1 {
		t.Fatalf("目录不可读不应计为 missing：%+v", rr.Summary)
	}
}

func TestExecute_NoPanels(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{dir: cfg.OutputDir, html: "<html><body>loading</body></html>"}

	rr := Execute(context.Background(), cfg, b, nil, discardLogger())

	if !rr.OK() {
		t.Fatalf("没有面板不是错误：%s", rr.Error)
	}
	if rr.Summary.Found != 0 || len(rr.Games) != 0 {
		t.Fatalf("期望空结果，实际 %+v", rr)
	}
}

func TestExecute_Failure_ScreenshotAndStage(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{
		dir:         cfg.OutputDir,
		html:        twoGamesHTML,
		sendKeysErr: errors.New("no such element"),
	}

	rr := Execute(context.Background(), cfg, b, nil, discardLogger())

	if rr.OK() || rr.Stage != StageLogin {
		t.Fatalf("期望在 login 阶段中断，实际 stage=%q err=%q", rr.Stage, rr.Error)
	}
	if !strings.Contains(rr.Error, "no such element") {
		t.Fatalf("错误信息应包含原因：%q", rr.Error)
	}
	shot := filepath.Join(cfg.DebugDir, config.ScreenshotName)
	if rr.Screenshot != shot {
		t.Fatalf("期望截图路径 %q，实际 %q", shot, rr.Screenshot)
	}
	if _, err := os.Stat(shot); err != nil {
		t.Fatalf("期望截图文件存在：%v", err)
	}
	if len(b.clicked) != 0 {
		t.Fatalf("中断后不应继续下载")
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBrowser{dir: cfg.OutputDir, html: twoGamesHTML}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr := Execute(ctx, cfg, b, nil, discardLogger())

	if rr.OK() || rr.Stage != StageLogin {
		t.Fatalf("期望在 login 阶段中断，实际 stage=%q", rr.Stage)
	}
	if !strings.Contains(rr.Error, context.Canceled.Error()) {
		t.Fatalf("期望 context canceled，实际 %q", rr.Error)
	}
	if rr.FinishedAt.IsZero() || rr.Games == nil {
		t.Fatalf("报告应已 finalize：%+v", rr)
	}
}
