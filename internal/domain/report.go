package domain

import (
	"sort"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusMissing    = "missing"
	StatusFailed     = "failed"
)

const (
	ErrCodeNoGamebook   = "no_gamebook"
	ErrCodeNoNewFile    = "no_new_file"
	ErrCodeRenameFailed = "rename_failed"
	ErrCodeClickFailed  = "click_failed"
	ErrCodeIOFailed     = "io_failed"
)

// RunReport 是一次运行的结果（写入 w<N>/report.json，并用于最终摘要）。
//
// 失败语义：Error 非空表示流程在某个阶段被整体中断；Games 只包含中断前已处理的条目。
type RunReport struct {
	Week int    `json:"week"`
	Dir  string `json:"dir"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Games   []GameResult  `json:"games"`

	Stage      string `json:"stage,omitempty"`
	Error      string `json:"error,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

type ReportSummary struct {
	Found      int `json:"found"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Missing    int `json:"missing"`
	Failed     int `json:"failed"`
}

type GameResult struct {
	Index int    `json:"index"`
	Name  string `json:"name"`

	Status    string `json:"status"`
	File      string `json:"file,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) games 按页面顺序（Index）稳定排序
// 3) summary 由 games 计算得出（Found 由调用方预先设置，不在这里覆盖）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Games == nil {
		r.Games = []GameResult{}
	}
	sort.SliceStable(r.Games, func(i, j int) bool { return r.Games[i].Index < r.Games[j].Index })

	s := ReportSummary{Found: r.Summary.Found}
	for _, g := range r.Games {
		switch g.Status {
		case StatusDownloaded:
			s.Downloaded++
		case StatusSkipped:
			s.Skipped++
		case StatusMissing:
			s.Missing++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// OK 表示流程没有被整体中断。
func (r RunReport) OK() bool { return r.Error == "" }
