package scan

import (
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/John-Robertt/tubeflow/internal/domain"
)

// clipNameRE 匹配 out/ 下由本工具写出的片段文件名，例如 "03_Clip.mp4"。
var clipNameRE = regexp.MustCompile(`(?i)^(\d+)_clip\.mp4$`)

// ScanClips 列出 outDir 下的片段文件（只看一层，只做 stat，不读文件内容）。
//
// 规则：
// - outDir 不存在：返回空列表且不报错
// - 目录、临时文件（.xxx.tmp-*）与不符合命名规则的文件一律忽略
// - 输出按文件名稳定排序
func ScanClips(outDir string) ([]domain.ClipFile, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	clips := make([]domain.ClipFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := clipNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		idx, _ := strconv.Atoi(m[1])
		clips = append(clips, domain.ClipFile{
			Name:    e.Name(),
			Index:   idx,
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
	}

	sort.Slice(clips, func(i, j int) bool { return clips[i].Name < clips[j].Name })
	return clips, nil
}
