package domain

import (
	"fmt"
	"strings"
)

// Orientation 是画幅方向（决定 provider 查询参数与最终时间线尺寸）。
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// ParseOrientation 解析并规范化画幅方向（大小写不敏感）。
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "portrait":
		return Portrait, nil
	case "landscape":
		return Landscape, nil
	default:
		return "", fmt.Errorf("orientation 只能是 portrait 或 landscape，实际是 %q", s)
	}
}

// MatchLabel 粗略描述为了找到素材放宽了多少查询。
type MatchLabel string

const (
	MatchExact       MatchLabel = "EXACT"
	MatchSubjectOnly MatchLabel = "SUBJECT_ONLY"
	MatchBroad       MatchLabel = "BROAD"
)

// Candidate 是某个 provider 针对某个查询返回的一条素材（尚未经过校验/挑选）。
//
// 约束：
// - DownloadURL 是去重（ExclusionSet）的唯一依据
// - Tags/PageURL/ID 只用于内容校验，允许为空
type Candidate struct {
	Source      string `json:"source"` // provider name（小写）
	ID          string `json:"id"`
	PageURL     string `json:"page_url"`
	Tags        string `json:"tags"`
	PreviewURL  string `json:"preview_url"`
	DownloadURL string `json:"download_url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// MetadataText 把可用的自由文本元数据拼成一个字符串（tags + 页面 URL + id）。
// 三者都缺失时返回空串。
func (c Candidate) MetadataText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{c.Tags, c.PageURL, c.ID} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// ResolvedAsset 是解析引擎唯一的输出：被选中的候选 + 匹配质量标记。
type ResolvedAsset struct {
	Candidate
	MatchLabel MatchLabel `json:"match_label"`
	UsedQuery  string     `json:"used_query"`
}
