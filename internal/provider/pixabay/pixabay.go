package pixabay

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

const DefaultBaseURL = "https://pixabay.com/api/videos/"

// Provider 实现 Pixabay 视频检索 API（key 通过 query 参数传递）。
type Provider struct {
	APIKey   string
	BaseURL  string
	PerPage  int
	MinWidth int
}

func (Provider) Name() string { return "pixabay" }

func (p Provider) Fetch(ctx context.Context, q providerx.Query, c *http.Client) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("缺少 PIXABAY_API_KEY")
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
	v.Set("key", p.APIKey)
	v.Set("q", q.Text)
	v.Set("per_page", strconv.Itoa(perPage(p.PerPage)))
	v.Set("video_type", "film")
	v.Set("orientation", orientationParam(q.Orientation))
	u.RawQuery = v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return providerx.FetchURL(c, req)
}

// Pixabay 用 vertical/horizontal 描述画幅。
func orientationParam(o domain.Orientation) string {
	if o == domain.Landscape {
		return "horizontal"
	}
	return "vertical"
}

type searchResponse struct {
	Hits []hit `json:"hits"`
}

type hit struct {
	ID      int64           `json:"id"`
	PageURL string          `json:"pageURL"`
	Tags    string          `json:"tags"`
	Videos  map[string]tier `json:"videos"`
}

type tier struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// 下载档位的优先顺序：medium 体积适中，够用即可。
var downloadTiers = []string{"medium", "large", "small", "tiny"}

// Parse 把搜索结果 JSON 解析为候选列表。
// 下载文件取第一个宽度达标的档位，都不达标时取第一个有 URL 的档位；预览取 tiny。
func (p Provider) Parse(body []byte) ([]domain.Candidate, error) {
	if len(body) == 0 {
		return nil, errors.New("body 为空")
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		pick, ok := pickTier(h.Videos, p.MinWidth)
		if !ok {
			continue
		}
		preview := strings.TrimSpace(h.Videos["tiny"].URL)
		if preview == "" {
			preview = pick.URL
		}
		out = append(out, domain.Candidate{
			Source:      "pixabay",
			ID:          strconv.FormatInt(h.ID, 10),
			PageURL:     strings.TrimSpace(h.PageURL),
			Tags:        strings.TrimSpace(h.Tags),
			PreviewURL:  preview,
			DownloadURL: strings.TrimSpace(pick.URL),
			Width:       pick.Width,
			Height:      pick.Height,
		})
	}
	return out, nil
}

func pickTier(videos map[string]tier, minWidth int) (tier, bool) {
	var first tier
	found := false
	for _, name := range downloadTiers {
		t, ok := videos[name]
		if !ok || strings.TrimSpace(t.URL) == "" {
			continue
		}
		if t.Width >= minWidth {
			return t, true
		}
		if !found {
			first, found = t, true
		}
	}
	return first, found
}

func perPage(n int) int {
	// Pixabay 要求 per_page 在 [3,200]。
	if n < 3 {
		return 10
	}
	return n
}
