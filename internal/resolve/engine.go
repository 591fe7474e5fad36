package resolve

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/cache"
	"github.com/John-Robertt/tubeflow/internal/keyword"
	"github.com/John-Robertt/tubeflow/internal/provider"
)

// StageRejected 标记 provider 给出了候选，但没有一个通过锚点校验。
const StageRejected = provider.StageRejected

// Engine 是素材解析引擎：breadcrumb 逐级下降，每一级让所有 provider 竞争，
// 校验通过的候选交给 Picker 决胜，找到即返回。
//
// Engine 本身无状态，可在多个 goroutine 间共享；ExclusionSet 由调用方持有。
type Engine struct {
	Providers []provider.Provider // 调用顺序
	Client    *http.Client
	Cache     *cache.Store // 可为 nil
	Picker    Picker       // nil 时取第一个
	Parallel  bool         // 同一级 breadcrumb 内并发调用 provider
	Log       *zap.Logger
}

// Resolve 为关键词找到一个素材；穷尽所有 breadcrumb 仍无结果时返回 nil（不是错误）。
func (e *Engine) Resolve(ctx context.Context, kw string, o domain.Orientation, exclude *domain.ExclusionSet) *domain.ResolvedAsset {
	got, _ := e.ResolveTrace(ctx, kw, o, exclude)
	return got
}

// ResolveTrace 与 Resolve 相同，但额外返回每次 provider 调用的轨迹（用于 report 解释结果）。
func (e *Engine) ResolveTrace(ctx context.Context, kw string, o domain.Orientation, exclude *domain.ExclusionSet) (*domain.ResolvedAsset, []provider.Attempt) {
	log := e.logger()
	crumbs := keyword.Reduce(kw)
	anchor := keyword.Anchor(kw)

	// 每个 provider 返回自己排序里第一个通过校验的候选，而不只是第一个候选。
	accept := func(c domain.Candidate) bool { return Acceptable(c, anchor) }

	var attempts []provider.Attempt
	for i, q := range crumbs {
		if ctx.Err() != nil {
			break
		}

		results := e.lookupAll(ctx, provider.Query{Text: q, Orientation: o}, exclude, accept)

		accepted := make([]domain.Candidate, 0, len(results))
		for _, r := range results {
			at := r.at
			if r.cand != nil {
				if Acceptable(*r.cand, anchor) {
					accepted = append(accepted, *r.cand)
				} else {
					at.Stage = StageRejected
				}
			}
			if at.Err != nil {
				log.Warn("provider 调用失败",
					zap.String("provider", at.Provider),
					zap.String("query", q),
					zap.String("stage", at.Stage),
					zap.Error(at.Err))
			} else {
				log.Debug("provider 调用",
					zap.String("provider", at.Provider),
					zap.String("query", q),
					zap.String("stage", at.Stage),
					zap.Bool("cached", at.Cached))
			}
			attempts = append(attempts, at)
		}

		if len(accepted) == 0 {
			continue
		}

		pick := accepted[0]
		if e.Picker != nil {
			pick = e.Picker.Pick(accepted)
		}
		return &domain.ResolvedAsset{
			Candidate:  pick,
			MatchLabel: label(i, len(crumbs)),
			UsedQuery:  q,
		}, attempts
	}
	return nil, attempts
}

func label(i, n int) domain.MatchLabel {
	switch {
	case i == 0:
		return domain.MatchExact
	case i == n-1:
		return domain.MatchSubjectOnly
	default:
		return domain.MatchBroad
	}
}

type lookupResult struct {
	cand *domain.Candidate
	at   provider.Attempt
}

// lookupAll 对每个 provider 调用一次 Lookup；结果顺序始终与 Providers 一致。
func (e *Engine) lookupAll(ctx context.Context, q provider.Query, exclude *domain.ExclusionSet, accept func(domain.Candidate) bool) []lookupResult {
	out := make([]lookupResult, len(e.Providers))
	if !e.Parallel || len(e.Providers) < 2 {
		for i, p := range e.Providers {
			out[i].cand, out[i].at = provider.Lookup(ctx, p, q, exclude, accept, e.Client, e.Cache)
		}
		return out
	}

	// 每个 goroutine 只写自己的下标；Lookup 不返回 error，所以 Wait 恒为 nil。
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range e.Providers {
		g.Go(func() error {
			out[i].cand, out[i].at = provider.Lookup(gctx, p, q, exclude, accept, e.Client, e.Cache)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// ProviderNames 返回引擎内 provider 的调用顺序（小写），用于 priority 决胜与日志。
func ProviderNames(ps []provider.Provider) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, strings.ToLower(strings.TrimSpace(p.Name())))
	}
	return out
}
