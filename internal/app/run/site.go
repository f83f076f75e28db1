package run

import (
	"fmt"

	"github.com/John-Robertt/nflgb/internal/browser"
)

// 站点相关的定位策略集中在这里；页面结构漂移时只改这一个文件。
var (
	usernameSelectors = []browser.Selector{
		browser.ByCSS("input[placeholder='Username'], input[name*='user' i], input[type='text']"),
		browser.ByXPath("//input[@type='text' or @placeholder='Username']"),
	}
	passwordSelectors = []browser.Selector{
		browser.ByCSS("input[placeholder='Password'], input[name*='pass' i], input[type='password']"),
		browser.ByXPath("//input[@type='password' or @placeholder='Password']"),
	}
	submitSelectors = []browser.Selector{
		browser.ByXPath("//button[contains(text(), 'LOGIN')]"),
		browser.ByCSS("input[type='submit'], button[type='submit'], button"),
	}

	regTabSelector = browser.ByXPath("//div[text()='REG']")
)

// gamebookXPath 相对于单个比赛面板求值。
const gamebookXPath = ".//a[contains(@class, 'btn') and contains(@class, 'reports') and contains(text(), 'GAME BOOK')]"

// termsMarker 出现在地址里表示被引导到了条款页。
const termsMarker = "TermsAndConditions"

func weekSelector(w int) browser.Selector {
	return browser.ByXPath(fmt.Sprintf("//div[@data-bind and text()='%d']", w))
}
