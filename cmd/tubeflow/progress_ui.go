package main

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/tubeflow/internal/app/run"
	"github.com/John-Robertt/tubeflow/internal/config"
	"github.com/John-Robertt/tubeflow/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间没有镜头完成时（provider 慢、片段大）定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total    int
	done     int
	ok       int
	fail     int
	skip     int
	notFound int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (只检索，不下载/不写入)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] tubeflow run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  orientation: %s\n", eff.Orientation)
	fmt.Fprintf(p.w, "  providers: %s\n", providerChain(eff.Providers))
	if len(eff.Dropped) > 0 {
		fmt.Fprintf(p.w, "  dropped: %s (缺少 API key)\n", strings.Join(eff.Dropped, ", "))
	}
	fmt.Fprintf(p.w, "  tie_break: %s\n", eff.TieBreak)
	fmt.Fprintf(p.w, "  parallel_providers: %s\n", onOff(eff.ParallelProviders))
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  media_proxy: %s\n", onOff(eff.MediaProxy))
	fmt.Fprintf(p.w, "  tts: %s\n", onOff(eff.Apply && eff.Keys.ElevenLabs != ""))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  scenes: %s\n", filepath.Join(eff.Path, eff.ScenesFile))
	fmt.Fprintf(p.w, "  out: %s\n", filepath.Join(eff.Path, "out"))
	fmt.Fprintf(p.w, "  cache: %s\n", filepath.Join(eff.Path, "cache"))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "load":
		fmt.Fprintf(p.w, "读取: scenes=%d invalid=%d (%s)\n",
			intField(fields, "scenes"), intField(fields, "invalid"), formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: scenes=%d need_resolve=%d skipped=%d excluded=%d (%s)\n",
			intField(fields, "scenes"),
			intField(fields, "need_resolve"),
			intField(fields, "skipped"),
			intField(fields, "excluded"),
			formatShortDuration(dur),
		)
		p.total = intField(fields, "scenes")
	case "resolve":
		prov, _ := fields["providers"].(string)
		fmt.Fprintf(p.w, "解析: providers=%s scenes=%d\n\n", prov, intField(fields, "scenes"))
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "voice":
		fmt.Fprintf(p.w, "旁白: written=%d existing=%d failed=%d (%s)\n",
			intField(fields, "written"),
			intField(fields, "existing"),
			intField(fields, "failed"),
			formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnSceneDone(idx, total int, res domain.SceneResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusResolved:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	case domain.StatusNotFound:
		p.notFound++
	}

	label := fmt.Sprintf("#%d", res.SceneNumber)
	switch res.Status {
	case domain.StatusFailed:
		chain := formatAttemptChain(res.Attempts, 1)
		if chain != "" {
			chain = " attempts=" + chain
		}
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s%s (%s)\n",
			idx, total, label, res.ErrorCode, truncate(res.ErrorMsg, 160), chain, formatShortDuration(dur),
		)
	case domain.StatusNotFound:
		fmt.Fprintf(p.w, "[%d/%d] %s NONE %q: %s (%s)\n",
			idx, total, label, res.Keyword, truncate(res.ErrorMsg, 120), formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		fmt.Fprintf(p.w, "[%d/%d] %s SKIP %s 已存在 (%s)\n",
			idx, total, label, res.Clip, formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s OK %s source=%s match=%s query=%q%s (%s)\n",
			idx, total, label, res.Clip, res.Source, res.MatchLabel, res.UsedQuery, formatFailureNote(res), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一个镜头完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d none=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.notFound, p.fail, p.skip, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func providerChain(providers []string) string {
	if len(providers) == 0 {
		return "(none)"
	}
	return strings.Join(providers, " -> ")
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// formatFailureNote 列出解析成功前调用失败过的 provider（例如 key 失效）。
func formatFailureNote(res domain.SceneResult) string {
	failed := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, a := range res.Attempts {
		if strings.TrimSpace(a.ErrorCode) == "" || seen[a.Provider] {
			continue
		}
		seen[a.Provider] = true
		failed = append(failed, a.Provider+" "+a.ErrorCode)
	}
	if len(failed) == 0 {
		return ""
	}
	return " (" + truncate(strings.Join(failed, ", "), 90) + ")"
}

func formatAttemptChain(attempts []domain.ProviderAttempt, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	if max < 0 {
		max = len(attempts)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := strings.TrimSpace(a.Provider) + ":" + strings.TrimSpace(a.Stage)
		if ec := strings.TrimSpace(a.ErrorCode); ec != "" {
			s += ":" + ec
		}
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
		if len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
