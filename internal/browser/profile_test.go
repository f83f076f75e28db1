package browser

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteProfile_DownloadPreferences(t *testing.T) {
	dir := t.TempDir()
	dl := filepath.Join(t.TempDir(), "w3")

	if err := writeProfile(dir, dl); err != nil {
		t.Fatalf("writeProfile 失败：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "Default", "Preferences"))
	if err != nil {
		t.Fatalf("读取 Preferences 失败：%v", err)
	}
	var got struct {
		Plugins struct {
			AlwaysOpenPDFExternally bool `json:"always_open_pdf_externally"`
		} `json:"plugins"`
		Download struct {
			DefaultDirectory  string `json:"default_directory"`
			PromptForDownload *bool  `json:"prompt_for_download"`
		} `json:"download"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Preferences 不是合法 JSON：%v\n%s", err, b)
	}
	if !got.Plugins.AlwaysOpenPDFExternally {
		t.Fatalf("期望 always_open_pdf_externally=true，实际 %s", b)
	}
	if diff := cmp.Diff(dl, got.Download.DefaultDirectory); diff != "" {
		t.Fatalf("default_directory 不符合预期（-want +got）：\n%s", diff)
	}
	if got.Download.PromptForDownload == nil || *got.Download.PromptForDownload {
		t.Fatalf("期望 prompt_for_download=false，实际 %s", b)
	}
}

func TestNewProfile_TempDir(t *testing.T) {
	dir, err := newProfile("/data/w1")
	if err != nil {
		t.Fatalf("newProfile 失败：%v", err)
	}
	defer os.RemoveAll(dir)

	if _, err := os.Stat(filepath.Join(dir, "Default", "Preferences")); err != nil {
		t.Fatalf("期望 Preferences 存在：%v", err)
	}
}
