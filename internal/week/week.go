package week

import "time"

const (
	// Max 是常规赛的最后一周。
	Max = 18
)

// SeasonStart 是 2024 赛季首场比赛日（周四）。
var SeasonStart = time.Date(2024, time.September, 5, 0, 0, 0, 0, time.Local)

// Resolve 计算要下载的周次。
//
// 规则（固定）：
// - override 非空：原样返回，不做范围校验
// - 否则：floor(days/7)+1，上限 max；赛季开始前（days<0）一律为 1
//
// days 按日历日计算（忽略时分秒），与 now 所在时区一致。
func Resolve(now, seasonStart time.Time, override *int, max int) int {
	if override != nil {
		return *override
	}

	days := daysBetween(seasonStart, now)
	if days < 0 {
		return 1
	}

	w := days/7 + 1
	if max > 0 && w > max {
		return max
	}
	return w
}

// daysBetween 返回 from 到 to 之间相差的整日数（可为负）。
// 两端都先落到 to 所在时区的当天零点，避免夏令时切换带来的 23/25 小时误差。
func daysBetween(from, to time.Time) int {
	loc := to.Location()
	f := from.In(loc)
	a := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
