package run

import (
	"time"

	"github.com/John-Robertt/nflgb/internal/config"
	"github.com/John-Robertt/nflgb/internal/domain"
)

// Observer 用于把“阶段/比赛结果”从会话流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（输出格式由 CLI 决定）。
// - 事件全部来自调用 Execute 的 goroutine；实现若自带后台 goroutine 需自行加锁。
type Observer interface {
	// OnStart 在 Execute 开始时调用（启动浏览器之后、登录之前）。
	OnStart(cfg config.Config)
	// OnPhaseDone 在某个阶段成功结束时调用。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnGameDone 在一场比赛处理完成时调用（idx 从 1 开始）。
	OnGameDone(idx, total int, res domain.GameResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.Config) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnGameDone(int, int, domain.GameResult, time.Duration) {}
