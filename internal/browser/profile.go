package browser

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"

	"github.com/John-Robertt/nflgb/internal/infra/fsx"
)

// Chrome 在 user-data-dir 下读取的默认 profile 偏好文件。
const (
	profileName     = "Default"
	preferencesName = "Preferences"
)

// preferences 只包含下载相关的偏好。
//
// always_open_pdf_externally 让 PDF 直接下载而不是在内置查看器里打开；
// 否则点击 GAME BOOK 后下载目录里不会出现文件。
func preferences(downloadDir string) map[string]any {
	return map[string]any{
		"plugins": map[string]any{
			"always_open_pdf_externally": true,
		},
		"download": map[string]any{
			"default_directory":   downloadDir,
			"prompt_for_download": false,
			"directory_upgrade":   true,
		},
		"savefile": map[string]any{
			"default_directory": downloadDir,
		},
	}
}

// newProfile 创建一次性的 user-data-dir，并写入下载偏好；调用方负责删除返回的目录。
func newProfile(downloadDir string) (string, error) {
	dir, err := os.MkdirTemp("", "nflgb-profile-*")
	if err != nil {
		return "", goerr.Wrap(err, "创建浏览器配置目录失败")
	}
	if err := writeProfile(dir, downloadDir); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

func writeProfile(dir, downloadDir string) error {
	b, err := json.Marshal(preferences(downloadDir))
	if err != nil {
		return goerr.Wrap(err, "序列化浏览器偏好失败")
	}
	pdir := filepath.Join(dir, profileName)
	if err := fsx.EnsureDir(pdir); err != nil {
		return goerr.Wrap(err, "创建 profile 目录失败", goerr.V("dir", pdir))
	}
	if err := fsx.WriteFileAtomicReplace(pdir, preferencesName, b); err != nil {
		return goerr.Wrap(err, "写入浏览器偏好失败", goerr.V("dir", pdir))
	}
	return nil
}
