package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/cache"
)

type stubProvider struct {
	name string

	fetchErr error
	parseErr error
	panicMsg string

	body  []byte
	cands []domain.Candidate

	fetchCalls int
	parseCalls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(ctx context.Context, q Query, c *http.Client) ([]byte, error) {
	p.fetchCalls++
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.body, nil
}

func (p *stubProvider) Parse(body []byte) ([]domain.Candidate, error) {
	p.parseCalls++
	if string(body) == "corrupt" {
		return nil, errors.New("bad json")
	}
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.cands, nil
}

var portrait = Query{Text: "penguin swimming", Orientation: domain.Portrait}

func TestLookup_FirstNonExcluded(t *testing.T) {
	p := &stubProvider{
		name: "Pexels",
		body: []byte(`{}`),
		cands: []domain.Candidate{
			{ID: "1", DownloadURL: ""},
			{ID: "2", DownloadURL: "https://cdn.test/2.mp4"},
			{ID: "3", DownloadURL: "https://cdn.test/3.mp4"},
		},
	}

	got, at := Lookup(context.Background(), p, portrait, domain.NewExclusionSet("https://cdn.test/2.mp4"), nil, nil, nil)
	if got == nil {
		t.Fatalf("期望返回候选，实际 nil（attempt=%+v）", at)
	}
	if got.ID != "3" {
		t.Fatalf("期望 ID=3，实际 %q", got.ID)
	}
	if got.Source != "pexels" {
		t.Fatalf("期望 Source=pexels，实际 %q", got.Source)
	}
	if at.Stage != StageOK || at.Err != nil || at.Query != portrait.Text {
		t.Fatalf("attempt 不符合预期：%+v", at)
	}
}

func TestLookup_AllExcludedOrEmpty(t *testing.T) {
	p := &stubProvider{
		name:  "pixabay",
		body:  []byte(`{}`),
		cands: []domain.Candidate{{ID: "1", DownloadURL: "https://cdn.test/1.mp4"}},
	}
	got, at := Lookup(context.Background(), p, portrait, domain.NewExclusionSet("https://cdn.test/1.mp4"), nil, nil, nil)
	if got != nil || at.Stage != StageExcluded {
		t.Fatalf("期望 excluded，实际 got=%v attempt=%+v", got, at)
	}

	p.cands = nil
	got, at = Lookup(context.Background(), p, portrait, nil, nil, nil, nil)
	if got != nil || at.Stage != StageEmpty || at.Err != nil {
		t.Fatalf("期望 empty，实际 got=%v attempt=%+v", got, at)
	}
}

func TestLookup_FailuresAreAbsorbed(t *testing.T) {
	cases := []struct {
		name  string
		p     *stubProvider
		stage string
	}{
		{name: "fetch", p: &stubProvider{name: "a", fetchErr: errors.New("timeout")}, stage: StageFetch},
		{name: "parse", p: &stubProvider{name: "a", body: []byte("{}"), parseErr: errors.New("schema")}, stage: StageParse},
		{name: "panic", p: &stubProvider{name: "a", panicMsg: "boom"}, stage: StageFetch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, at := Lookup(context.Background(), tc.p, portrait, nil, nil, nil, nil)
			if got != nil {
				t.Fatalf("期望 nil，实际 %+v", got)
			}
			if at.Stage != tc.stage {
				t.Fatalf("期望 stage=%q，实际 %q", tc.stage, at.Stage)
			}
			var pe *Error
			if !errors.As(at.Err, &pe) || pe.Stage != tc.stage {
				t.Fatalf("期望 *provider.Error(stage=%s)，实际：%v", tc.stage, at.Err)
			}
		})
	}
}

func TestLookup_UnsupportedOrientation(t *testing.T) {
	p := &stubProvider{name: "mixkit", fetchErr: ErrUnsupportedOrientation}
	got, at := Lookup(context.Background(), p, portrait, nil, nil, nil, nil)
	if got != nil || at.Stage != StageUnsupported || at.Err != nil {
		t.Fatalf("不支持的画幅应视为无结果：got=%v attempt=%+v", got, at)
	}
}

func TestLookup_Cache(t *testing.T) {
	root := t.TempDir()
	p := &stubProvider{
		name:  "pexels",
		body:  []byte(`{"videos":[1]}`),
		cands: []domain.Candidate{{ID: "1", DownloadURL: "https://cdn.test/1.mp4"}},
	}

	// dry-run：只读缓存，不回写。
	ro := cache.New(root, true)
	if _, at := Lookup(context.Background(), p, portrait, nil, nil, nil, &ro); at.Cached {
		t.Fatalf("空缓存不应命中")
	}
	if _, ok, _ := ro.ReadResponse("pexels", domain.Portrait, portrait.Text); ok {
		t.Fatalf("只读模式不应写入缓存")
	}

	// apply：第一次回源并写缓存，第二次直接命中。
	rw := cache.New(root, false)
	Lookup(context.Background(), p, portrait, nil, nil, nil, &rw)
	before := p.fetchCalls
	got, at := Lookup(context.Background(), p, portrait, nil, nil, nil, &rw)
	if got == nil || !at.Cached {
		t.Fatalf("期望命中缓存，实际 got=%v attempt=%+v", got, at)
	}
	if p.fetchCalls != before {
		t.Fatalf("命中缓存时不应再次 Fetch")
	}
}

func TestLookup_CorruptCacheRefetches(t *testing.T) {
	root := t.TempDir()
	store := cache.New(root, false)
	if err := store.WriteResponse("pexels", domain.Portrait, portrait.Text, []byte("corrupt")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	p := &stubProvider{
		name:  "pexels",
		body:  []byte(`{}`),
		cands: []domain.Candidate{{ID: "1", DownloadURL: "https://cdn.test/1.mp4"}},
	}
	got, at := Lookup(context.Background(), p, portrait, nil, nil, nil, &store)
	if got == nil || at.Cached {
		t.Fatalf("期望回源成功，实际 got=%v attempt=%+v", got, at)
	}
	if p.fetchCalls != 1 {
		t.Fatalf("期望 Fetch 1 次，实际 %d", p.fetchCalls)
	}

	b, _, _ := store.ReadResponse("pexels", domain.Portrait, portrait.Text)
	if string(b) != `{}` {
		t.Fatalf("损坏的缓存应被覆盖，实际 %q", string(b))
	}
}

func TestLookup_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &stubProvider{name: "pexels", body: []byte(`{}`)}
	got, at := Lookup(ctx, p, portrait, nil, nil, nil, nil)
	if got != nil || !errors.Is(at.Err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际 got=%v err=%v", got, at.Err)
	}
	if p.fetchCalls != 0 {
		t.Fatalf("已取消时不应 Fetch")
	}
}

func TestRegistry_OrderAndDuplicates(t *testing.T) {
	a := &stubProvider{name: "Pixabay"}
	b := &stubProvider{name: "pexels"}
	reg, err := NewRegistry(a, b)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "pixabay" || names[1] != "pexels" {
		t.Fatalf("注册顺序不符合预期：%v", names)
	}
	if _, err := NewRegistry(a, &stubProvider{name: "pixabay"}); err == nil {
		t.Fatalf("期望重复 provider 报错")
	}
}

func TestLookup_AcceptSkipsToNextCandidate(t *testing.T) {
	p := &stubProvider{
		name: "pexels",
		body: []byte(`{}`),
		cands: []domain.Candidate{
			{ID: "1", DownloadURL: "https://cdn.test/1.mp4", Tags: "bird nest"},
			{ID: "2", DownloadURL: "https://cdn.test/2.mp4", Tags: "penguin ice"},
		},
	}
	hasPenguin := func(c domain.Candidate) bool { return strings.Contains(c.Tags, "penguin") }

	got, at := Lookup(context.Background(), p, portrait, nil, hasPenguin, nil, nil)
	if got == nil || got.ID != "2" || at.Stage != StageOK {
		t.Fatalf("期望跳过不相关的第一条，实际 got=%v attempt=%+v", got, at)
	}

	got, at = Lookup(context.Background(), p, portrait, domain.NewExclusionSet("https://cdn.test/2.mp4"), hasPenguin, nil, nil)
	if got != nil || at.Stage != StageRejected {
		t.Fatalf("期望 rejected，实际 got=%v attempt=%+v", got, at)
	}
}
