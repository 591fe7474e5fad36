package domain

// ClipFile 描述 out/ 下已存在的一个片段文件（只做 stat，不读内容）。
type ClipFile struct {
	Name    string // 例如 "03_Clip.mp4"
	Index   int    // 从文件名解析出的序号（1 起）；解析失败为 0
	Size    int64
	ModUnix int64
}
