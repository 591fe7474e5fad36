package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/John-Robertt/tubeflow/internal/domain"
)

// Query 是一次素材检索的输入（某一级 breadcrumb + 画幅）。
type Query struct {
	Text        string
	Orientation domain.Orientation
}

// Provider 把“素材站差异”限制在 provider 包内部；解析引擎只依赖统一接口与稳定的 Candidate。
//
// 约束：
// - Fetch 只发一次请求：不做缓存、不做重试（缓存由 Lookup 统一实现，重试策略就是 breadcrumb 本身）
// - Parse 必须是纯函数：相同输入 => 相同输出
// - Parse 返回的候选按站点自身的排序给出，每条的 DownloadURL 已按清晰度规则选好
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q Query, c *http.Client) ([]byte, error)
	Parse(body []byte) ([]domain.Candidate, error)
}

// ErrUnsupportedOrientation 表示站点不支持请求的画幅；Lookup 会把它当作“无结果”吸收。
var ErrUnsupportedOrientation = errors.New("不支持该画幅")
