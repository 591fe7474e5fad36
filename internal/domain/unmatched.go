package domain

// InvalidScene 描述无法进入解析流程的镜头（目前只有序号重复）。
type InvalidScene struct {
	Scene  Scene
	Reason string // "duplicate_number"
}
