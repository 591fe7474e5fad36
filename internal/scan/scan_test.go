package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanClips_OnlyClipFiles(t *testing.T) {
	out := t.TempDir()

	touch(t, filepath.Join(out, "02_Clip.mp4"), 10)
	touch(t, filepath.Join(out, "01_clip.MP4"), 20)
	touch(t, filepath.Join(out, "Script.txt"), 1)
	touch(t, filepath.Join(out, ".03_Clip.mp4.tmp-123"), 1)
	touch(t, filepath.Join(out, "nested", "04_Clip.mp4"), 1)

	got, err := ScanClips(out)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个片段，实际 %d：%+v", len(got), got)
	}
	if got[0].Name != "01_clip.MP4" || got[0].Index != 1 || got[0].Size != 20 {
		t.Fatalf("第 1 个片段不符合预期：%+v", got[0])
	}
	if got[1].Name != "02_Clip.mp4" || got[1].Index != 2 {
		t.Fatalf("第 2 个片段不符合预期：%+v", got[1])
	}
}

func TestScanClips_MissingDir(t *testing.T) {
	got, err := ScanClips(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("不存在的目录不应报错：%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("期望空列表，实际 %+v", got)
	}
}

func touch(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
