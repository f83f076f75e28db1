package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Snapshot 返回 dir 下扩展名为 ext（大小写不敏感）的普通文件名集合。
//
// 说明：Chrome 下载中的临时文件是 "<name>.pdf.crdownload"，扩展名不匹配，
// 因此只有下载完成（已改回最终文件名）的文件才会出现在集合里。
func Snapshot(dir, ext string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ext = strings.ToLower(ext)
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.ToLower(filepath.Ext(name)) != ext {
			continue
		}
		out[name] = struct{}{}
	}
	return out, nil
}

// NewFiles 返回 after 中存在、before 中不存在的文件名（字典序，保证稳定）。
func NewFiles(before, after map[string]struct{}) []string {
	out := make([]string, 0, 1)
	for n := range after {
		if _, ok := before[n]; ok {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// UniqueName 返回 dir 下第一个不存在的文件名：
// <base><ext>，否则 <base>_1<ext>、<base>_2<ext>……
func UniqueName(dir, base, ext string) string {
	name := base + ext
	for i := 1; exists(filepath.Join(dir, name)); i++ {
		name = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
	return name
}

// RenameUnique 把 dir 下的 src 重命名为 <base><ext>（冲突时追加数字后缀），返回最终文件名。
// 若 src 本身已经叫 <base><ext>，则不做任何事。
func RenameUnique(dir, src, base, ext string) (string, error) {
	if src == base+ext {
		return src, nil
	}
	if strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("目标文件名为空")
	}
	if strings.ContainsAny(base, `/\`) {
		return "", fmt.Errorf("非法目标文件名：%q", base)
	}
	name := UniqueName(dir, base, ext)
	if err := Rename(filepath.Join(dir, src), filepath.Join(dir, name)); err != nil {
		return "", err
	}
	return name, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
