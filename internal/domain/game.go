package domain

import "fmt"

// GamePanel 描述周赛程页上的一个比赛面板（只在单次迭代内有效）。
//
// 不变量：
// - Index 是面板在页面中的 0-based 顺序，也是点击 GAME BOOK 时的定位依据
// - Visitor/Home 允许为空（页面结构缺失时回退为 game_<n>）
type GamePanel struct {
	Index       int
	Visitor     string
	Home        string
	HasGamebook bool
}

// Name 返回重命名用的文件名主干：<Visitor><Home>，取不到则 game_<Index+1>。
func (g GamePanel) Name() string {
	if g.Visitor != "" && g.Home != "" {
		return g.Visitor + g.Home
	}
	return PositionalName(g.Index)
}

// HasTeams 表示两支球队代码都提取成功。
func (g GamePanel) HasTeams() bool {
	return g.Visitor != "" && g.Home != ""
}

// PositionalName 是提取失败时的兜底名称（1-based，与进度输出一致）。
func PositionalName(idx int) string {
	return fmt.Sprintf("game_%d", idx+1)
}
