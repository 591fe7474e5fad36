package planner

import (
	"fmt"
	"path/filepath"

	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/scan"
)

// MinClipBytes 是片段文件的最小合法大小；更小的文件视为被拦截的错误页或中断的下载。
const MinClipBytes = 5000

// ClipName 返回第 index 个镜头（1 起）的片段文件名，例如 "01_Clip.mp4"。
func ClipName(index int) string {
	return fmt.Sprintf("%02d_Clip.mp4", index)
}

// VoiceName 返回第 index 个镜头的旁白音频文件名，例如 "01_Voice.mp3"。
func VoiceName(index int) string {
	return fmt.Sprintf("%02d_Voice.mp3", index)
}

// ReadOutState 读取 <root>/out/ 的现状（只做 stat，不读文件内容）。
// Clips 以规范文件名索引，文件名大小写差异不会导致重复下载。
// 若 out/ 不存在，返回空状态且不报错。
func ReadOutState(root string) (domain.OutState, error) {
	outDir := filepath.Join(root, "out")
	st := domain.OutState{
		OutDir: outDir,
		Clips:  map[string]domain.ClipFile{},
	}

	clips, err := scan.ScanClips(outDir)
	if err != nil {
		return domain.OutState{}, err
	}
	for _, c := range clips {
		if c.Index <= 0 {
			continue
		}
		st.Clips[ClipName(c.Index)] = c
	}
	return st, nil
}

// PlanScenes 基于有序镜头 + OutState 生成确定性的执行计划（不做任何写入）。
//
// prevURLs 来自上一次 report（片段名 => download_url）：已有片段的镜头不再解析，
// 但它的 URL 仍需进入 ExclusionSet，避免新镜头选中同一段素材。
func PlanScenes(scenes []domain.Scene, st domain.OutState, prevURLs map[string]string) []domain.ScenePlan {
	plans := make([]domain.ScenePlan, 0, len(scenes))
	for i, s := range scenes {
		name := ClipName(i + 1)
		p := domain.ScenePlan{
			Index:       i + 1,
			Scene:       s,
			ClipName:    name,
			ClipAbs:     filepath.Join(st.OutDir, name),
			NeedResolve: !st.HasClip(name, MinClipBytes),
		}
		if !p.NeedResolve {
			p.PrevDownloadURL = prevURLs[name]
		}
		plans = append(plans, p)
	}
	return plans
}

// PrevURLs 从上一次 report 中提取片段名 => download_url。
func PrevURLs(r domain.RunReport) map[string]string {
	out := make(map[string]string, len(r.Items))
	for _, it := range r.Items {
		if it.DownloadURL == "" || it.Clip == "" {
			continue
		}
		if it.Status != domain.StatusResolved && it.Status != domain.StatusSkipped {
			continue
		}
		out[filepath.Base(filepath.FromSlash(it.Clip))] = it.DownloadURL
	}
	return out
}
