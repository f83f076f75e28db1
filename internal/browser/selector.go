package browser

import (
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
)

// Kind 区分选择器语法。
type Kind int

const (
	CSS Kind = iota
	XPath
)

// Selector 是一个定位策略：CSS 选择器或 XPath 表达式。
type Selector struct {
	Kind Kind
	Expr string
}

func ByCSS(expr string) Selector   { return Selector{Kind: CSS, Expr: expr} }
func ByXPath(expr string) Selector { return Selector{Kind: XPath, Expr: expr} }

func (s Selector) String() string {
	if s.Kind == XPath {
		return "xpath:" + s.Expr
	}
	return "css:" + s.Expr
}

// by 映射到 chromedp 的查询方式：XPath 走 DOM.performSearch（BySearch），CSS 走 querySelector。
func (s Selector) by() chromedp.QueryOption {
	if s.Kind == XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// findJS 返回一个 JS 表达式，其值为第一个匹配元素或 null。
func (s Selector) findJS() string {
	lit := jsString(s.Expr)
	if s.Kind == XPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", lit)
	}
	return fmt.Sprintf("document.querySelector(%s)", lit)
}

// clickJS 用 JS 触发 click（与页面上 knockout 绑定的 div 配合更稳定），返回是否找到元素。
func (s Selector) clickJS() string {
	return fmt.Sprintf(`(function() {
	const el = %s;
	if (!el) { return false; }
	el.scrollIntoView({block: 'center'});
	el.click();
	return true;
})()`, s.findJS())
}

// gamebookJS 在第 idx 个比赛面板内查找并点击 GAME BOOK 按钮；面板或按钮不存在时返回 false。
func gamebookJS(panelClass, buttonXPath string, idx int) string {
	return fmt.Sprintf(`(function() {
	const panels = document.getElementsByClassName(%s);
	if (%d >= panels.length) { return false; }
	const btn = document.evaluate(%s, panels[%d], null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!btn) { return false; }
	btn.scrollIntoView({block: 'center'});
	btn.click();
	return true;
})()`, jsString(panelClass), idx, jsString(buttonXPath), idx)
}

// jsString 把 Go 字符串编码为 JS 字符串字面量（JSON 字符串是合法的 JS 字面量）。
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
