package page

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/nflgb/internal/domain"
)

// 周赛程页的结构标记。页面不执行 JS 也能从 DOM 快照里读到这些 class。
const (
	PanelClass    = "gamePanelLarge"
	ClubRowClass  = "clubRow"
	TeamPrefix    = "team"
	GamebookText  = "GAME BOOK"
	// 与点击用的 XPath 同一规则：class 属性按子串包含 btn 与 reports。
	gamebookQuery = "a[class*='btn'][class*='reports']"
)

// ParseGames 从周赛程页 HTML 中解析出所有比赛面板（按页面顺序）。
//
// 约束：
// - Parse 是纯函数：相同输入 => 相同输出
// - 球队代码缺失不是错误（Name() 会回退为 game_<n>）
func ParseGames(html string) ([]domain.GamePanel, error) {
	if strings.TrimSpace(html) == "" {
		return nil, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	panels := doc.Find("." + PanelClass)
	out := make([]domain.GamePanel, 0, panels.Length())
	panels.Each(func(i int, s *goquery.Selection) {
		g := domain.GamePanel{Index: i}

		// 只看前两行：第一行客队，第二行主队。
		rows := s.Find("." + ClubRowClass)
		if rows.Length() >= 2 {
			g.Visitor = TeamCode(rows.Eq(0).AttrOr("class", ""))
			g.Home = TeamCode(rows.Eq(1).AttrOr("class", ""))
		}

		g.HasGamebook = hasGamebook(s)
		out = append(out, g)
	})
	return out, nil
}

// CountGames 返回页面上的比赛面板数量；解析失败视为 0。
func CountGames(html string) int {
	games, err := ParseGames(html)
	if err != nil {
		return 0
	}
	return len(games)
}

// TeamCode 从 class 列表中取第一个 "team" 前缀的 token 并去掉前缀。
// 例如 "clubRow possession teamSF" => "SF"。
func TeamCode(classAttr string) string {
	for _, c := range strings.Fields(classAttr) {
		if strings.HasPrefix(c, TeamPrefix) {
			return strings.TrimPrefix(c, TeamPrefix)
		}
	}
	return ""
}

func hasGamebook(panel *goquery.Selection) bool {
	found := false
	panel.Find(gamebookQuery).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.Contains(a.Text(), GamebookText) {
			found = true
			return false
		}
		return true
	})
	return found
}
