package mixkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/tubeflow/internal/domain"
	providerx "github.com/John-Robertt/tubeflow/internal/provider"
)

const (
	DefaultBaseURL = "https://mixkit.co"
	assetsBaseURL  = "https://assets.mixkit.co"
)

// Provider 抓取 Mixkit 的免费视频搜索页（无需 API key）。
//
// 约束：
// - Mixkit 素材几乎全是横屏：portrait 请求直接返回 ErrUnsupportedOrientation
// - Parse 只依赖 HTML 与 BaseURL，是纯函数
type Provider struct {
	BaseURL string
}

func (Provider) Name() string { return "mixkit" }

func (p Provider) base() string {
	if b := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/"); b != "" {
		return b
	}
	return DefaultBaseURL
}

// Fetch 进入搜索页：<base>/free-stock-video/<slug>/
func (p Provider) Fetch(ctx context.Context, q providerx.Query, c *http.Client) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	if q.Orientation != domain.Landscape {
		return nil, providerx.ErrUnsupportedOrientation
	}
	s := slug(q.Text)
	if s == "" {
		// 空查询：退化为最新素材列表。
		s = "latest"
	}
	pageURL := p.base() + "/free-stock-video/" + url.PathEscape(s) + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return providerx.FetchURL(c, req)
}

var videoIDRE = regexp.MustCompile(`-(\d+)(?:-[a-z0-9]+)?\.mp4$`)

// Parse 从搜索页 HTML 中提取卡片。
// 下载地址按 Mixkit 资源命名规则由视频 id 推导（720p 档）。
func (p Provider) Parse(body []byte) ([]domain.Candidate, error) {
	if len(body) == 0 {
		return nil, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	cards := doc.Find("div.item-grid-card")
	if cards.Length() == 0 && doc.Find("div.item-grid").Length() == 0 && doc.Find("title").Length() == 0 {
		return nil, errors.New("不是搜索结果页（疑似被拦截）")
	}

	out := make([]domain.Candidate, 0, cards.Length())
	cards.Each(func(_ int, s *goquery.Selection) {
		title := normSpace(s.Find(".item-grid-card__title").First().Text())

		href, _ := s.Find("a[href*='/free-stock-video/']").First().Attr("href")
		pageURL := resolveURL(p.base(), href)

		preview, _ := s.Find("video").First().Attr("src")
		if preview == "" {
			preview, _ = s.Find("video source").First().Attr("src")
		}
		preview = resolveURL(assetsBaseURL, preview)

		id, _ := s.Attr("data-video-id")
		id = strings.TrimSpace(id)
		if id == "" {
			if m := videoIDRE.FindStringSubmatch(preview); m != nil {
				id = m[1]
			}
		}
		if id == "" {
			return
		}

		keywords := make([]string, 0, 4)
		if title != "" {
			keywords = append(keywords, title)
		}
		s.Find(".item-grid-card__tags a, a[href*='/free-stock-video/tag/']").Each(func(_ int, a *goquery.Selection) {
			if t := normSpace(a.Text()); t != "" {
				keywords = append(keywords, t)
			}
		})

		out = append(out, domain.Candidate{
			Source:      "mixkit",
			ID:          id,
			PageURL:     pageURL,
			Tags:        strings.Join(keywords, ", "),
			PreviewURL:  preview,
			DownloadURL: fmt.Sprintf("%s/videos/%s/%s-720.mp4", assetsBaseURL, id, id),
			Width:       1280,
			Height:      720,
		})
	})
	return out, nil
}

var nonSlugRE = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(nonSlugRE.ReplaceAllString(s, "-"), "-")
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(u).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
