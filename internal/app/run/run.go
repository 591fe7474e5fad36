package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/tubeflow/internal/app"
	"github.com/John-Robertt/tubeflow/internal/app/planner"
	"github.com/John-Robertt/tubeflow/internal/config"
	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/cache"
	"github.com/John-Robertt/tubeflow/internal/infra/fsx"
	"github.com/John-Robertt/tubeflow/internal/infra/httpx"
	"github.com/John-Robertt/tubeflow/internal/keyword"
	"github.com/John-Robertt/tubeflow/internal/provider"
	"github.com/John-Robertt/tubeflow/internal/resolve"
	"github.com/John-Robertt/tubeflow/internal/script"
	"github.com/John-Robertt/tubeflow/internal/tts"
)

// ScriptFile 是 apply 模式下写入 out/ 的旁白稿。
const ScriptFile = "Script.txt"

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为镜头级失败（单个镜头失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, log *zap.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, reg, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 执行顺序：
// 1) load：读取并排序 scenes
// 2) plan：对照 out/ 现状决定哪些镜头需要解析；已有片段的 URL 预置进 ExclusionSet
// 3) resolve：按镜头顺序串行解析（同一个 ExclusionSet 必须串行）
// 4) download：仅 apply，worker pool 并发下载到 out/NN_Clip.mp4
// 5) voice：仅 apply 且配置了 ELEVENLABS_API_KEY，逐镜头写出 out/NN_Voice.mp3
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, log *zap.Logger, obs Observer) domain.RunReport {
	if log == nil {
		log = zap.NewNop()
	}
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:       uuid.NewString(),
		Path:        eff.Path,
		Orientation: string(eff.Orientation),
		DryRun:      !eff.Apply,
		StartedAt:   started,
		Items:       make([]domain.SceneResult, 0, 32),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	fail := func(code, msg string) domain.RunReport {
		rr.Items = append(rr.Items, syntheticFailed(code, msg))
		return finish()
	}

	if reg.Len() == 0 {
		return fail(domain.ErrCodeConfigInvalid, "没有可用的 provider（检查 providers 与 API key）")
	}

	store := cache.New(eff.Path, !eff.Apply)
	engine, err := NewEngine(eff, reg, &store, log)
	if err != nil {
		return fail(domain.ErrCodeConfigInvalid, err.Error())
	}

	var (
		mediaClient *http.Client
		speaker     tts.Speaker
	)
	if eff.Apply {
		mc, e := httpx.NewMediaClient(eff.ProxyURL, eff.MediaProxy)
		if e != nil {
			return fail(domain.ErrCodeConfigInvalid, e.Error())
		}
		mediaClient = mc

		sp, e := NewSpeaker(eff)
		if e != nil {
			return fail(domain.ErrCodeConfigInvalid, e.Error())
		}
		speaker = sp
	}

	// load
	loadStarted := time.Now()
	s, err := script.Load(eff.Path, eff.ScenesFile)
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return fail(domain.ErrCodeIOFailed, fmt.Sprintf("读取 %s 失败：%v", eff.ScenesFile, err))
		}
		return fail(domain.ErrCodeInvalidScene, fmt.Sprintf("%s 无效：%v", eff.ScenesFile, err))
	}
	ordered, invalid := app.OrderScenes(s.Scenes)
	if obs != nil {
		obs.OnPhaseDone("load", map[string]any{
			"scenes":  len(s.Scenes),
			"invalid": len(invalid),
		}, time.Since(loadStarted))
	}
	for _, u := range invalid {
		rr.Items = append(rr.Items, invalidItem(u))
	}

	// plan
	planStarted := time.Now()
	st, err := planner.ReadOutState(eff.Path)
	if err != nil {
		return fail(domain.ErrCodeIOFailed, fmt.Sprintf("读取 out 状态失败：%v", err))
	}
	plans := planner.PlanScenes(ordered, st, previousURLs(store, log))

	exclude := domain.NewExclusionSet()
	needResolve := 0
	for _, p := range plans {
		if p.NeedResolve {
			needResolve++
			continue
		}
		exclude.Add(p.PrevDownloadURL)
	}
	if obs != nil {
		obs.OnPhaseDone("plan", map[string]any{
			"scenes":       len(plans),
			"need_resolve": needResolve,
			"skipped":      len(plans) - needResolve,
			"excluded":     exclude.Len(),
		}, time.Since(planStarted))
	}

	if obs != nil {
		obs.OnPhaseDone("resolve", map[string]any{
			"providers": strings.Join(reg.Names(), ","),
			"scenes":    needResolve,
		}, 0)
	}

	results := make([]domain.SceneResult, len(plans))
	done := 0
	emit := func(i int, dur time.Duration) {
		done++
		if obs != nil {
			obs.OnSceneDone(done, len(plans), results[i], dur)
		}
	}

	pending := make([]int, 0, len(plans))
	for i, p := range plans {
		oneStarted := time.Now()
		res := baseResult(eff, p)

		if !p.NeedResolve {
			res.Status = domain.StatusSkipped
			res.DownloadURL = p.PrevDownloadURL
			results[i] = res
			emit(i, time.Since(oneStarted))
			continue
		}

		if ctx.Err() != nil {
			res.Status = domain.StatusFailed
			res.ErrorCode = domain.ErrCodeFetchFailed
			res.ErrorMsg = fmt.Sprintf("运行已取消：%v", ctx.Err())
			results[i] = res
			emit(i, time.Since(oneStarted))
			continue
		}

		asset, attempts := engine.ResolveTrace(ctx, p.Scene.Keyword, eff.Orientation, exclude)
		res.Attempts = toReportAttempts(attempts)
		if asset == nil {
			if ctx.Err() != nil {
				res.Status = domain.StatusFailed
				res.ErrorCode = domain.ErrCodeFetchFailed
				res.ErrorMsg = fmt.Sprintf("运行已取消：%v", ctx.Err())
			} else {
				res.Status = domain.StatusNotFound
				res.ErrorCode = domain.ErrCodeNoVisualFound
				res.ErrorMsg = notFoundMessage(p.Scene.Keyword, attempts)
			}
			log.Info("镜头未找到素材",
				zap.Int("scene", p.Scene.Number),
				zap.String("keyword", p.Scene.Keyword))
			results[i] = res
			emit(i, time.Since(oneStarted))
			continue
		}

		exclude.Add(asset.DownloadURL)
		res.Status = domain.StatusResolved
		res.Source = asset.Source
		res.MatchLabel = asset.MatchLabel
		res.UsedQuery = asset.UsedQuery
		res.PageURL = asset.PageURL
		res.PreviewURL = asset.PreviewURL
		res.DownloadURL = asset.DownloadURL
		results[i] = res

		log.Info("镜头已解析",
			zap.Int("scene", p.Scene.Number),
			zap.String("source", asset.Source),
			zap.String("match", string(asset.MatchLabel)),
			zap.String("query", asset.UsedQuery))

		if eff.Apply {
			// 下载阶段完成后再发事件，保证事件里是最终状态。
			pending = append(pending, i)
			continue
		}
		emit(i, time.Since(oneStarted))
	}

	if eff.Apply {
		outErr := fsx.EnsureDir(st.OutDir)
		if outErr != nil {
			code := domain.ErrCodeIOFailed
			if fsx.IsPathTypeConflict(outErr) {
				code = domain.ErrCodeTargetConflict
			}
			for _, i := range pending {
				results[i].Status = domain.StatusFailed
				results[i].ErrorCode = code
				results[i].ErrorMsg = outErr.Error()
				emit(i, 0)
			}
		} else {
			downloadAll(ctx, eff, mediaClient, plans, results, pending, log, emit)
			if err := writeScript(st.OutDir, ordered); err != nil {
				log.Warn("写入旁白稿失败", zap.Error(err))
			}
			if speaker != nil {
				voiceStarted := time.Now()
				n := narrateAll(ctx, speaker, eff.Path, st.OutDir, plans, results, voiceSpeed(s.VoiceSettings, log), log)
				if obs != nil {
					obs.OnPhaseDone("voice", map[string]any{
						"written":  n.written,
						"existing": n.existing,
						"failed":   n.failed,
					}, time.Since(voiceStarted))
				}
			}
		}
	}

	rr.Items = append(rr.Items, results...)
	return finish()
}

// NewEngine 按生效配置组装解析引擎（run 与单次 resolve 共用）。
// store 为 nil 时不读写缓存。
func NewEngine(eff config.EffectiveConfig, reg provider.Registry, store *cache.Store, log *zap.Logger) (*resolve.Engine, error) {
	apiClient, err := httpx.NewAPIClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		return nil, fmt.Errorf("proxy.url 无效：%w", err)
	}
	providers := reg.All()
	picker, err := resolve.NewPicker(eff.TieBreak, resolve.ProviderNames(providers))
	if err != nil {
		return nil, err
	}
	return &resolve.Engine{
		Providers: providers,
		Client:    apiClient,
		Cache:     store,
		Picker:    picker,
		Parallel:  eff.ParallelProviders,
		Log:       log,
	}, nil
}

// downloadAll 按 worker pool 并发下载；事件只在当前 goroutine 发出。
func downloadAll(ctx context.Context, eff config.EffectiveConfig, c *http.Client, plans []domain.ScenePlan, results []domain.SceneResult, pending []int, log *zap.Logger, emit func(int, time.Duration)) {
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}

	type job struct {
		i   int
		res domain.SceneResult
	}
	type outcome struct {
		i    int
		code string
		err  error
		dur  time.Duration
	}

	jobs := make(chan job)
	out := make(chan outcome, len(pending))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				oneStarted := time.Now()
				p := plans[j.i]
				code, err := downloadClip(ctx, c, filepath.Dir(p.ClipAbs), p.ClipName, j.res.DownloadURL, refererFor(j.res))
				out <- outcome{i: j.i, code: code, err: err, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, i := range pending {
			jobs <- job{i: i, res: results[i]}
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	for o := range out {
		if o.err != nil {
			results[o.i].Status = domain.StatusFailed
			results[o.i].ErrorCode = o.code
			results[o.i].ErrorMsg = o.err.Error()
			log.Warn("下载片段失败",
				zap.String("clip", results[o.i].Clip),
				zap.String("error_code", o.code),
				zap.Error(o.err))
		}
		emit(o.i, o.dur)
	}
}

// downloadClip 把 u 流式写入 dir/name，返回失败时对应的 error_code。
// 目标已存在视为成功（片段不覆盖）。
func downloadClip(ctx context.Context, c *http.Client, dir, name, u, referer string) (string, error) {
	if c == nil {
		return domain.ErrCodeDownloadFailed, errors.New("media client 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.ErrCodeDownloadFailed, err
	}
	// 部分 CDN 会拒绝没有浏览器特征的请求。
	req.Header.Set("User-Agent", httpx.BrowserUA())
	if strings.TrimSpace(referer) != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.Do(req)
	if err != nil {
		return domain.ErrCodeDownloadFailed, fmt.Errorf("下载失败：%w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ErrCodeDownloadFailed, fmt.Errorf("下载失败：HTTP %d", resp.StatusCode)
	}

	body := &trackReader{r: resp.Body}
	_, err = fsx.WriteStreamAtomicNoOverwrite(dir, name, body, planner.MinClipBytes)
	switch {
	case err == nil, errors.Is(err, os.ErrExist):
		return "", nil
	case fsx.IsPathTypeConflict(err):
		return domain.ErrCodeTargetConflict, err
	case body.err != nil:
		return domain.ErrCodeDownloadFailed, fmt.Errorf("下载中断：%w", body.err)
	default:
		var ts *fsx.TooSmallError
		if errors.As(err, &ts) {
			return domain.ErrCodeDownloadFailed, err
		}
		return domain.ErrCodeIOFailed, fmt.Errorf("写入片段失败：%w", err)
	}
}

// providerSites 是没有详情页 URL 时的 Referer 兜底。
var providerSites = map[string]string{
	"pexels":  "https://www.pexels.com/",
	"pixabay": "https://pixabay.com/",
	"mixkit":  "https://mixkit.co/",
}

func refererFor(res domain.SceneResult) string {
	if u := strings.TrimSpace(res.PageURL); u != "" {
		return u
	}
	return providerSites[res.Source]
}

// trackReader 记录读取端（网络）的错误，用于区分“下载中断”与“写盘失败”。
type trackReader struct {
	r   io.Reader
	err error
}

func (t *trackReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

func writeScript(outDir string, scenes []domain.Scene) error {
	var b strings.Builder
	for _, s := range scenes {
		fmt.Fprintf(&b, "SCENE %d: %s\n", s.Number, s.Voiceover)
	}
	return fsx.WriteFileAtomicReplace(outDir, ScriptFile, []byte(b.String()))
}

// previousURLs 读取上一次 apply 的 report；读不到或损坏都不算错误（只是少了去重依据）。
func previousURLs(store cache.Store, log *zap.Logger) map[string]string {
	b, ok, err := store.ReadReport()
	if err != nil {
		log.Warn("读取上一次 report 失败", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var prev domain.RunReport
	if err := json.Unmarshal(b, &prev); err != nil {
		log.Warn("上一次 report 已损坏，忽略", zap.Error(err))
		return nil
	}
	return planner.PrevURLs(prev)
}

func baseResult(eff config.EffectiveConfig, p domain.ScenePlan) domain.SceneResult {
	return domain.SceneResult{
		SceneNumber: p.Scene.Number,
		Keyword:     p.Scene.Keyword,
		Clip:        relToRoot(eff.Path, p.ClipAbs),
	}
}

// relToRoot 把 out/ 下的绝对路径转成相对 <path> 的 slash 路径（report 里使用）。
func relToRoot(root, abs string) string {
	if rel, err := filepath.Rel(root, abs); err == nil {
		return filepath.ToSlash(rel)
	}
	return abs
}

func invalidItem(u domain.InvalidScene) domain.SceneResult {
	msg := fmt.Sprintf("镜头无效：%s", u.Reason)
	if u.Reason == "duplicate_number" {
		msg = fmt.Sprintf("scene_number %d 重复；只保留第一个", u.Scene.Number)
	}
	return domain.SceneResult{
		SceneNumber: u.Scene.Number,
		Keyword:     u.Scene.Keyword,
		Status:      domain.StatusFailed,
		ErrorCode:   domain.ErrCodeInvalidScene,
		ErrorMsg:    msg,
	}
}

func syntheticFailed(code, msg string) domain.SceneResult {
	return domain.SceneResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func notFoundMessage(kw string, attempts []provider.Attempt) string {
	anchor := keyword.Anchor(kw)
	failed := 0
	for _, a := range attempts {
		if a.Err != nil {
			failed++
		}
	}
	msg := fmt.Sprintf("所有查询都没有找到包含 %q 的素材", anchor)
	if anchor == "" {
		msg = "关键词为空，无法检索素材"
	}
	if failed > 0 && failed == len(attempts) {
		msg += "（全部 provider 调用失败，检查网络、代理或 API key）"
	}
	return msg
}

func toReportAttempts(in []provider.Attempt) []domain.ProviderAttempt {
	out := make([]domain.ProviderAttempt, 0, len(in))
	for _, a := range in {
		pa := domain.ProviderAttempt{
			Query:    a.Query,
			Provider: a.Provider,
			Stage:    a.Stage,
			Cached:   a.Cached,
		}
		if a.Err != nil {
			stage := a.Stage
			inner := a.Err
			var pe *provider.Error
			if errors.As(a.Err, &pe) {
				stage = pe.Stage
				inner = pe.Err
			}
			if stage == provider.StageParse {
				pa.ErrorCode = domain.ErrCodeParseFailed
				pa.ErrorMsg = humanizeParseError(a.Provider, inner)
			} else {
				pa.ErrorCode = domain.ErrCodeFetchFailed
				pa.ErrorMsg = humanizeFetchError(a.Provider, inner)
			}
		}
		out = append(out, pa)
	}
	return out
}

func humanizeFetchError(providerName string, err error) string {
	if err == nil {
		return providerName + " 检索失败"
	}

	var hs *provider.HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case 401, 403:
			return fmt.Sprintf("%s 返回 HTTP %d（API key 无效或无权限）。检查 %s。", providerName, hs.StatusCode, keyEnvFor(providerName))
		case 429:
			return fmt.Sprintf("%s 返回 HTTP 429（触发限流）。建议稍后重试或关闭 parallel_providers。", providerName)
		default:
			return fmt.Sprintf("%s 返回 HTTP %d。", providerName, hs.StatusCode)
		}
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Sprintf("%s 检索被取消。", providerName)
	}
	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return fmt.Sprintf("%s 检索超时。建议检查网络/代理，或调大 timeout_seconds。", providerName)
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") || strings.Contains(low, "ssl") {
		return fmt.Sprintf("%s 连接失败（TLS/SSL）。建议配置 proxy.url 或稍后重试。", providerName)
	}

	return fmt.Sprintf("%s 检索失败：%v", providerName, err)
}

func humanizeParseError(providerName string, err error) string {
	if err == nil {
		return providerName + " 解析失败"
	}
	// 通常意味着接口格式变化或被返回了非预期页面。
	return fmt.Sprintf("%s 解析失败（接口格式可能变化或返回了非预期内容）：%v", providerName, err)
}

func keyEnvFor(providerName string) string {
	switch providerName {
	case "pexels":
		return config.EnvPexelsKey
	case "pixabay":
		return config.EnvPixabayKey
	default:
		return "API key"
	}
}
