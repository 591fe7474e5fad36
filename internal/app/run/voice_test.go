package run

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/John-Robertt/tubeflow/internal/domain"
)

// ttsRecorder 是 ElevenLabs 的桩：返回 "audio:<text>"，text 含 "denied" 时返回 401。
type ttsRecorder struct {
	mu     sync.Mutex
	texts  []string
	speeds []float64
}

func (r *ttsRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Text          string `json:"text"`
			VoiceSettings struct {
				Speed float64 `json:"speed"`
			} `json:"voice_settings"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.texts = append(r.texts, body.Text)
		r.speeds = append(r.speeds, body.VoiceSettings.Speed)
		r.mu.Unlock()

		if strings.Contains(body.Text, "denied") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("audio:" + body.Text))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecute_Apply_WritesVoiceovers(t *testing.T) {
	root := t.TempDir()
	media := newMediaServer(t)
	rec := &ttsRecorder{}
	voice := rec.server(t)

	script := `{"scenes":[
	  {"scene_number":1,"voiceover":"Penguins huddle.","keyword":"penguin"},
	  {"scene_number":2,"voiceover":"","keyword":"samurai"},
	  {"scene_number":3,"voiceover":"Already narrated.","keyword":"penguin"},
	  {"scene_number":4,"voiceover":"denied line","keyword":"samurai"}
	],"voice_settings":{"voice_speed":"+10%"}}`
	if err := os.WriteFile(filepath.Join(root, "scenes.json"), []byte(script), 0o644); err != nil {
		t.Fatalf("写入 scenes.json 失败：%v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "out"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "out", "03_Voice.mp3"), []byte("old"), 0o644); err != nil {
		t.Fatalf("写入音频失败：%v", err)
	}

	reg := mustRegistry(t, stubProvider{name: "pexels", byQuery: map[string][]domain.Candidate{
		"penguin": {clip(media.URL+"/p1.mp4", "penguin"), clip(media.URL+"/p2.mp4", "penguin ice")},
		"samurai": {clip(media.URL+"/s1.mp4", "samurai"), clip(media.URL+"/s2.mp4", "samurai rain")},
	}})
	eff := testConfig(root, true)
	eff.Keys.ElevenLabs = "el-key"
	eff.TTSBaseURL = voice.URL

	rr := Execute(context.Background(), eff, reg, nil)

	if rr.Summary.Resolved != 4 || rr.Summary.Failed != 0 {
		t.Fatalf("旁白失败不应让镜头失败：summary=%+v items=%+v", rr.Summary, rr.Items)
	}

	b, err := os.ReadFile(filepath.Join(root, "out", "01_Voice.mp3"))
	if err != nil {
		t.Fatalf("期望写出 01_Voice.mp3：%v", err)
	}
	if string(b) != "audio:Penguins huddle." {
		t.Fatalf("音频内容不符合预期：%q", b)
	}
	if rr.Items[0].Voice != "out/01_Voice.mp3" || rr.Items[0].VoiceError != "" {
		t.Fatalf("第 1 个镜头旁白不符合预期：%+v", rr.Items[0])
	}

	// 没有旁白文本：不调用 TTS。
	if _, err := os.Stat(filepath.Join(root, "out", "02_Voice.mp3")); !os.IsNotExist(err) {
		t.Fatalf("空旁白不应写音频，Stat err=%v", err)
	}
	if rr.Items[1].Voice != "" {
		t.Fatalf("第 2 个镜头不应有旁白：%+v", rr.Items[1])
	}

	// 已存在的音频保留原样。
	if b, _ := os.ReadFile(filepath.Join(root, "out", "03_Voice.mp3")); string(b) != "old" {
		t.Fatalf("已存在的音频不应被覆盖：%q", b)
	}
	if rr.Items[2].Voice != "out/03_Voice.mp3" {
		t.Fatalf("第 3 个镜头应引用已有音频：%+v", rr.Items[2])
	}

	if rr.Items[3].Voice != "" || !strings.Contains(rr.Items[3].VoiceError, "ELEVENLABS_API_KEY") {
		t.Fatalf("第 4 个镜头应记录 voice_error：%+v", rr.Items[3])
	}
	if _, err := os.Stat(filepath.Join(root, "out", "04_Voice.mp3")); !os.IsNotExist(err) {
		t.Fatalf("失败的旁白不应留下文件，Stat err=%v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.texts) != 2 || rec.texts[0] != "Penguins huddle." || rec.texts[1] != "denied line" {
		t.Fatalf("TTS 调用不符合预期：%q", rec.texts)
	}
	for _, s := range rec.speeds {
		if s < 1.0999 || s > 1.1001 {
			t.Fatalf("期望语速 1.1，实际 %v", s)
		}
	}
}

func TestExecute_DryRun_NoVoice(t *testing.T) {
	root := t.TempDir()
	rec := &ttsRecorder{}
	voice := rec.server(t)
	writeScenes(t, root, domain.Scene{Number: 1, Voiceover: "Penguins huddle.", Keyword: "penguin"})

	reg := mustRegistry(t, stubProvider{name: "pexels", byQuery: map[string][]domain.Candidate{
		"penguin": {clip("https://cdn.test/p.mp4", "penguin")},
	}})
	eff := testConfig(root, false)
	eff.Keys.ElevenLabs = "el-key"
	eff.TTSBaseURL = voice.URL

	rr := Execute(context.Background(), eff, reg, nil)
	if rr.Items[0].Voice != "" {
		t.Fatalf("dry-run 不应生成旁白：%+v", rr.Items[0])
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.texts) != 0 {
		t.Fatalf("dry-run 不应调用 TTS：%q", rec.texts)
	}
}

func TestVoiceSpeed(t *testing.T) {
	if got := voiceSpeed(domain.VoiceSettings{VoiceSpeed: "+50%"}, zap.NewNop()); got != 1.2 {
		t.Fatalf("期望截断到 1.2，实际 %v", got)
	}
	if got := voiceSpeed(domain.VoiceSettings{VoiceSpeed: "fast"}, zap.NewNop()); got != 1 {
		t.Fatalf("无效语速期望 1，实际 %v", got)
	}
}

func TestNewSpeaker_DisabledWithoutKey(t *testing.T) {
	sp, err := NewSpeaker(testConfig(t.TempDir(), true))
	if err != nil || sp != nil {
		t.Fatalf("没有 key 时期望 nil，实际 sp=%v err=%v", sp, err)
	}
}
