package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/John-Robertt/nflgb/internal/app/run"
	"github.com/John-Robertt/nflgb/internal/browser"
	"github.com/John-Robertt/nflgb/internal/config"
	"github.com/John-Robertt/nflgb/internal/domain"
	"github.com/John-Robertt/nflgb/internal/infra/fsx"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runCLI(ctx, os.Args, os.Stdout, os.Stderr, download)
	stop()
	os.Exit(code)
}

// options 是命令行解析的结果。
type options struct {
	Week    int
	WeekSet bool

	Headful  bool
	ExecPath string
	ProxyURL string

	Log logging
}

// action 执行一次下载并返回进程退出码；测试中替换为桩。
type action func(ctx context.Context, o options, stdout, stderr io.Writer) int

// runCLI 解析参数并调用 act。参数错误返回 2。
func runCLI(ctx context.Context, args []string, stdout, stderr io.Writer, act action) int {
	var o options
	code := 0

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "week",
			Aliases:     []string{"w"},
			Usage:       "周次（未指定则按当前日期计算）",
			Destination: &o.Week,
		},
		&cli.BoolFlag{
			Name:        "headful",
			Usage:       "显示浏览器窗口（调试用）",
			Destination: &o.Headful,
		},
		&cli.StringFlag{
			Name:        "chrome",
			Usage:       "Chrome 可执行文件路径（默认自动查找）",
			Destination: &o.ExecPath,
			Sources:     cli.EnvVars("NFLGB_CHROME"),
		},
		&cli.StringFlag{
			Name:        "proxy",
			Usage:       "浏览器代理（http/https/socks5），为空表示直连",
			Destination: &o.ProxyURL,
			Sources:     cli.EnvVars("NFLGB_PROXY"),
		},
	}

	cmd := &cli.Command{
		Name:      "nflgb",
		Usage:     "下载 NFL GSIS 指定周次的全部 GAME BOOK（PDF）",
		UsageText: "nflgb [--week N]",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     append(flags, o.Log.Flags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.NArg() > 0 {
				return fmt.Errorf("不接受位置参数：%v", c.Args().Slice())
			}
			o.WeekSet = c.IsSet("week")
			code = act(ctx, o, stdout, stderr)
			return nil
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n", err)
		return 2
	}
	return code
}

// download 是生产 action：准备目录、启动浏览器、驱动会话、写报告。
//
// 退出码：浏览器无法启动为 1；会话中途失败已被记录（日志/截图/报告），仍返回 0。
func download(ctx context.Context, o options, stdout, stderr io.Writer) int {
	log := o.Log.Configure(stderr)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwd, _ = filepath.Abs(cwd)

	var override *int
	if o.WeekSet {
		override = &o.Week
	}
	cfg := config.Default(cwd, config.ResolveWeek(time.Now(), override))
	cfg.Headless = !o.Headful
	cfg.ExecPath = o.ExecPath
	cfg.ProxyURL = o.ProxyURL
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "配置错误：%v\n", err)
		return 2
	}
	log.Debug("生效配置", slog.Any("config", cfg))

	if err := fsx.EnsureDir(cfg.OutputDir); err != nil {
		log.Error("创建输出目录失败", slog.String("dir", cfg.OutputDir), slog.Any("error", err))
		return 1
	}

	sess, err := browser.Open(ctx, browser.Options{
		Headless:     cfg.Headless,
		ExecPath:     cfg.ExecPath,
		ProxyURL:     cfg.ProxyURL,
		DownloadDir:  cfg.OutputDir,
		Timeout:      cfg.Timeout,
		PollInterval: cfg.PollInterval,
		Logger:       log,
	})
	if err != nil {
		log.Error("无法启动浏览器", slog.Any("error", err))
		fmt.Fprintf(stderr, "无法启动浏览器：%v\n", err)
		return 1
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("关闭浏览器失败", slog.Any("error", err))
		}
		fmt.Fprintln(stdout, "浏览器已关闭")
	}()

	ui := newProgressUI(stdout)
	rr := run.Execute(ctx, cfg, sess, ui, log)
	ui.Stop()

	if err := writeReportFile(cfg.OutputDir, rr); err != nil {
		log.Error("写入 report.json 失败", slog.Any("error", err))
	}
	emitSummary(stdout, rr)
	return 0
}

func writeReportFile(dir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "序列化报告失败")
	}
	b = append(b, '\n')
	if err := fsx.WriteFileAtomicReplace(dir, config.ReportName, b); err != nil {
		return goerr.Wrap(err, "写入报告失败", goerr.V("dir", dir))
	}
	return nil
}

func emitSummary(w io.Writer, rr domain.RunReport) {
	if !rr.OK() {
		fmt.Fprintf(w, "出错（%s）：%s\n", rr.Stage, rr.Error)
		if rr.Screenshot != "" {
			fmt.Fprintf(w, "截图: %s\n", rr.Screenshot)
		}
	}
	fmt.Fprintf(w, "完成：found=%d downloaded=%d skipped=%d missing=%d failed=%d\n",
		rr.Summary.Found, rr.Summary.Downloaded, rr.Summary.Skipped, rr.Summary.Missing, rr.Summary.Failed,
	)
	fmt.Fprintf(w, "第 %d 周的 PDF 保存在：%s\n", rr.Week, rr.Dir)
	fmt.Fprintf(w, "report: %s\n", filepath.Join(rr.Dir, config.ReportName))
}
