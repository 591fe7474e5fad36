package domain

// OutState 描述 <path>/out/ 的现状。
type OutState struct {
	OutDir string

	// Clips 按文件名索引，便于 O(1) 判定某个镜头是否已完成。
	Clips map[string]ClipFile
}

// HasClip 要求文件存在且不小于 minSize（过小的文件视为中断的下载）。
func (s OutState) HasClip(name string, minSize int64) bool {
	c, ok := s.Clips[name]
	return ok && c.Size >= minSize
}
