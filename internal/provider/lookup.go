package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/cache"
)

// Attempt 的阶段取值。
const (
	StageFetch       = "fetch"
	StageParse       = "parse"
	StageUnsupported = "unsupported" // 站点不支持该画幅
	StageEmpty       = "empty"       // 没有可下载的候选
	StageExcluded    = "excluded"    // 有候选，但都已被本次运行使用过
	StageRejected    = "rejected"    // 有未排除的候选，但都没有通过 accept 校验
	StageOK          = "ok"
)

// Attempt 记录一次 provider 尝试（用于解释 breadcrumb 下降与 provider 轮换的原因）。
// 注意：这是内部执行轨迹，由上层决定如何写进 report。
type Attempt struct {
	Provider string // provider name（小写）
	Query    string
	Stage    string
	Cached   bool  // body 来自 <path>/cache
	Err      error // 仅 fetch/parse 阶段非 nil
}

// Error 是 provider 阶段的可追溯错误。
// 上层可以据此把失败归类为 fetch_failed / parse_failed。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" 或 "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Lookup 用 provider p 检索 q，返回第一个未被排除、可下载且通过 accept 的候选。
// accept 为 nil 时不做内容校验。
//
// 约束：
// - 永不返回 error：网络失败、解析失败、panic 都折叠为“无结果”，原因记录在 Attempt 里
// - store 非 nil 时先读缓存；缓存内容无法解析会回源重新抓取
// - 仅 store 可写时才回写缓存（dry-run 不产生任何落盘）
func Lookup(ctx context.Context, p Provider, q Query, exclude *domain.ExclusionSet, accept func(domain.Candidate) bool, c *http.Client, store *cache.Store) (cand *domain.Candidate, at Attempt) {
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	at = Attempt{Provider: name, Query: q.Text, Stage: StageFetch}

	defer func() {
		if r := recover(); r != nil {
			cand = nil
			at.Err = &Error{Provider: name, Stage: at.Stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	var body []byte
	if store != nil {
		if b, ok, err := store.ReadResponse(name, q.Orientation, q.Text); err == nil && ok {
			body, at.Cached = b, true
		}
	}

	var list []domain.Candidate
	if body != nil {
		at.Stage = StageParse
		got, err := p.Parse(body)
		if err == nil {
			list = got
		} else {
			// 缓存损坏或站点格式变化：回源一次。
			body, at.Cached = nil, false
			at.Stage = StageFetch
		}
	}

	if body == nil {
		if err := ctx.Err(); err != nil {
			at.Err = &Error{Provider: name, Stage: StageFetch, Err: err}
			return nil, at
		}
		b, err := p.Fetch(ctx, q, c)
		if err != nil {
			if errors.Is(err, ErrUnsupportedOrientation) {
				at.Stage = StageUnsupported
				return nil, at
			}
			at.Err = &Error{Provider: name, Stage: StageFetch, Err: err}
			return nil, at
		}

		at.Stage = StageParse
		got, err := p.Parse(b)
		if err != nil {
			at.Err = &Error{Provider: name, Stage: StageParse, Err: err}
			return nil, at
		}
		list = got

		if store != nil && !store.ReadOnly {
			// 写缓存失败不影响本次检索结果。
			_ = store.WriteResponse(name, q.Orientation, q.Text, b)
		}
	}

	usable, fresh := 0, 0
	for i := range list {
		it := list[i]
		if strings.TrimSpace(it.DownloadURL) == "" {
			continue
		}
		usable++
		if exclude.Has(it.DownloadURL) {
			continue
		}
		fresh++
		if it.Source == "" {
			it.Source = name
		}
		if accept != nil && !accept(it) {
			continue
		}
		at.Stage = StageOK
		return &it, at
	}

	switch {
	case fresh > 0:
		at.Stage = StageRejected
	case usable > 0:
		at.Stage = StageExcluded
	default:
		at.Stage = StageEmpty
	}
	return nil, at
}
