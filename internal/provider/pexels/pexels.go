package pexels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/tubeflow/internal/domain"
	providerx "github.com/John-Robertt/tubeflow/internal/provider"
)

const DefaultBaseURL = "https://api.pexels.com/videos/search"

// Provider 实现 Pexels 视频检索 API。
//
// 约束：
// - Fetch/Parse 不做缓存/重试（由 provider.Lookup 统一控制）
// - Parse 必须是纯函数，输出顺序与 API 返回顺序一致
type Provider struct {
	APIKey   string
	BaseURL  string // 为空时使用 DefaultBaseURL（测试里指向 httptest）
	PerPage  int
	MinWidth int // 选择下载文件时要求的最小宽度
}

func (Provider) Name() string { return "pexels" }

func (p Provider) Fetch(ctx context.Context, q providerx.Query, c *http.Client) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("缺少 PEXELS_API_KEY")
	}

	base := p.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	v := u.Query()
	v.Set("query", q.Text)
	v.Set("per_page", strconv.Itoa(perPage(p.PerPage)))
	v.Set("orientation", string(q.Orientation))
	u.RawQuery = v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.APIKey)
	req.Header.Set("Accept", "application/json")
	return providerx.FetchURL(c, req)
}

type searchResponse struct {
	Videos []video `json:"videos"`
}

type video struct {
	ID     int64           `json:"id"`
	URL    string          `json:"url"`
	Image  string          `json:"image"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Tags   json.RawMessage `json:"tags"`
	Files  []videoFile     `json:"video_files"`
}

type videoFile struct {
	Quality string `json:"quality"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Link    string `json:"link"`
}

// Parse 把搜索结果 JSON 解析为候选列表。
//
// 下载文件：第一个 quality=hd 且宽度达标的文件；没有则退回第一个带链接的文件。
// 预览：第一个文件（通常是最小的一档）。
func (p Provider) Parse(body []byte) ([]domain.Candidate, error) {
	if len(body) == 0 {
		return nil, errors.New("body 为空")
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(resp.Videos))
	for _, v := range resp.Videos {
		if len(v.Files) == 0 {
			continue
		}
		pick, ok := firstHD(v.Files, p.MinWidth)
		if !ok {
			pick = firstWithLink(v.Files)
		}
		w, h := pick.Width, pick.Height
		if w == 0 || h == 0 {
			w, h = v.Width, v.Height
		}
		out = append(out, domain.Candidate{
			Source:      "pexels",
			ID:          strconv.FormatInt(v.ID, 10),
			PageURL:     strings.TrimSpace(v.URL),
			Tags:        flattenTags(v.Tags),
			PreviewURL:  strings.TrimSpace(v.Files[0].Link),
			DownloadURL: strings.TrimSpace(pick.Link),
			Width:       w,
			Height:      h,
		})
	}
	return out, nil
}

func firstHD(files []videoFile, minWidth int) (videoFile, bool) {
	for _, f := range files {
		if strings.EqualFold(f.Quality, "hd") && f.Width >= minWidth && strings.TrimSpace(f.Link) != "" {
			return f, true
		}
	}
	return videoFile{}, false
}

func firstWithLink(files []videoFile) videoFile {
	for _, f := range files {
		if strings.TrimSpace(f.Link) != "" {
			return f
		}
	}
	return files[0]
}

// flattenTags 兼容 tags 为字符串数组或逗号分隔字符串两种形态。
func flattenTags(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func perPage(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}
