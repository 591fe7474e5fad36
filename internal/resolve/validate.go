package resolve

import (
	"strings"

	"github.com/John-Robertt/tubeflow/internal/domain"
)

// Acceptable 判断候选是否与锚点主语相关：元数据（tags + 页面 URL + id）小写后必须包含锚点。
//
// 元数据完全缺失时一律拒绝：宁可没有素材，也不要一个不相关的素材。
// anchor 为空（关键词为空）时只要求元数据非空。
func Acceptable(c domain.Candidate, anchor string) bool {
	meta := strings.ToLower(c.MetadataText())
	if meta == "" {
		return false
	}
	return strings.Contains(meta, strings.ToLower(strings.TrimSpace(anchor)))
}
