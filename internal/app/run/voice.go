package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/tubeflow/internal/app/planner"
	"github.com/John-Robertt/tubeflow/internal/config"
	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/fsx"
	"github.com/John-Robertt/tubeflow/internal/infra/httpx"
	"github.com/John-Robertt/tubeflow/internal/tts"
)

// voiceTimeout 覆盖一次完整的 TTS 请求（服务端渲染 + 音频下载）。
const voiceTimeout = 60 * time.Second

// NewSpeaker 在配置了 ELEVENLABS_API_KEY 时返回 TTS 实现；否则返回 nil（不生成旁白音频）。
func NewSpeaker(eff config.EffectiveConfig) (tts.Speaker, error) {
	if strings.TrimSpace(eff.Keys.ElevenLabs) == "" {
		return nil, nil
	}
	c, err := httpx.NewAPIClient(eff.ProxyURL, voiceTimeout)
	if err != nil {
		return nil, fmt.Errorf("proxy.url 无效：%w", err)
	}
	return tts.ElevenLabs{
		APIKey:  eff.Keys.ElevenLabs,
		VoiceID: eff.TTSVoiceID,
		ModelID: eff.TTSModelID,
		BaseURL: eff.TTSBaseURL,
		Client:  c,
	}, nil
}

type voiceCounts struct {
	written, existing, failed int
}

// narrateAll 为每个有旁白的镜头写出 out/NN_Voice.mp3，与同序号的片段对齐。
// 已存在的音频不重新生成；失败只记在 voice_error 上，不改变镜头状态。
func narrateAll(ctx context.Context, sp tts.Speaker, root, outDir string, plans []domain.ScenePlan, results []domain.SceneResult, speed float64, log *zap.Logger) voiceCounts {
	var n voiceCounts
	for i, p := range plans {
		text := strings.TrimSpace(p.Scene.Voiceover)
		if text == "" {
			continue
		}
		name := planner.VoiceName(p.Index)
		abs := filepath.Join(outDir, name)

		if fi, err := os.Stat(abs); err == nil && fi.Mode().IsRegular() && fi.Size() > 0 {
			results[i].Voice = relToRoot(root, abs)
			n.existing++
			continue
		}
		if err := ctx.Err(); err != nil {
			results[i].VoiceError = fmt.Sprintf("运行已取消：%v", err)
			n.failed++
			continue
		}

		audio, err := sp.Speak(ctx, text, speed)
		if err == nil {
			err = fsx.WriteFileAtomicNoOverwrite(outDir, name, audio)
			if errors.Is(err, os.ErrExist) {
				err = nil
			}
		}
		if err != nil {
			results[i].VoiceError = humanizeVoiceError(err)
			n.failed++
			log.Warn("生成旁白音频失败",
				zap.Int("scene", p.Scene.Number),
				zap.String("voice", name),
				zap.Error(err))
			continue
		}
		results[i].Voice = relToRoot(root, abs)
		n.written++
	}
	return n
}

// voiceSpeed 解析 voice_settings.voice_speed；无效时按正常语速并记 warn。
func voiceSpeed(vs domain.VoiceSettings, log *zap.Logger) float64 {
	v, err := tts.ParseSpeed(vs.VoiceSpeed)
	if err != nil {
		log.Warn("voice_speed 无效，使用正常语速", zap.Error(err))
		return 1
	}
	return tts.ClampSpeed(v)
}

func humanizeVoiceError(err error) string {
	var ae *tts.APIError
	if errors.As(err, &ae) {
		switch ae.StatusCode {
		case 401, 403:
			return fmt.Sprintf("TTS 返回 HTTP %d（API key 无效或无权限）。检查 %s。", ae.StatusCode, config.EnvElevenLabsKey)
		case 429:
			return "TTS 返回 HTTP 429（触发限流或额度用尽）。建议稍后重试。"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TTS 请求超时。建议检查网络/代理。"
	}
	return fmt.Sprintf("TTS 失败：%v", err)
}
