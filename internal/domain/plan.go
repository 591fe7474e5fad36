package domain

// ScenePlan 是单个镜头的最小执行计划。
type ScenePlan struct {
	Index int // 在有序镜头列表中的位置（1 起），决定片段文件名
	Scene Scene

	ClipName string // 例如 "01_Clip.mp4"
	ClipAbs  string

	NeedResolve bool
	// PrevDownloadURL 来自上一次 report：片段已存在时用于预置 ExclusionSet。
	PrevDownloadURL string
}
