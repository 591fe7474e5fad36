package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io/v1"
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID = "eleven_multilingual_v2"

	// ElevenLabs 接受的语速范围。
	MinSpeed = 0.7
	MaxSpeed = 1.2

	maxAudioBytes = 64 << 20
)

// Speaker 把一段旁白渲染成音频（mp3 字节）。speed=1 为正常语速。
type Speaker interface {
	Speak(ctx context.Context, text string, speed float64) ([]byte, error)
}

// ElevenLabs 是 ElevenLabs text-to-speech 的 HTTP 实现。
type ElevenLabs struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string // 为空时使用 DefaultBaseURL；测试里指向 httptest
	Client  *http.Client
}

// APIError 表示 TTS 接口返回了非 2xx。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tts HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("tts HTTP %d：%s", e.StatusCode, e.Message)
}

type speakRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
}

func (e ElevenLabs) Speak(ctx context.Context, text string, speed float64) ([]byte, error) {
	if e.Client == nil {
		return nil, errors.New("http client 不能为空")
	}
	if strings.TrimSpace(e.APIKey) == "" {
		return nil, errors.New("缺少 ElevenLabs API key")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("旁白为空")
	}

	base := strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	voice := strings.TrimSpace(e.VoiceID)
	if voice == "" {
		voice = DefaultVoiceID
	}
	model := strings.TrimSpace(e.ModelID)
	if model == "" {
		model = DefaultModelID
	}

	body, err := json.Marshal(speakRequest{
		Text:    text,
		ModelID: model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           ClampSpeed(speed),
		},
	})
	if err != nil {
		return nil, err
	}

	u := base + "/text-to-speech/" + url.PathEscape(voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.APIKey)

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, err
	}
	if len(audio) > maxAudioBytes {
		return nil, fmt.Errorf("音频超过 %d 字节", maxAudioBytes)
	}
	if len(audio) == 0 {
		return nil, errors.New("音频为空")
	}
	return audio, nil
}

// ParseSpeed 把 voice_speed 转换为倍速：
// "+10%" => 1.1，"-5%" => 0.95，"1.2" => 1.2，空串 => 1。
func ParseSpeed(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(strings.TrimPrefix(pct, "+"), 64)
		if err != nil {
			return 0, fmt.Errorf("voice_speed 无效：%q", s)
		}
		return 1 + v/100, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("voice_speed 无效：%q", s)
	}
	return v, nil
}

// ClampSpeed 截断到 [MinSpeed, MaxSpeed]；非正数按正常语速处理。
func ClampSpeed(v float64) float64 {
	switch {
	case v <= 0:
		return 1
	case v < MinSpeed:
		return MinSpeed
	case v > MaxSpeed:
		return MaxSpeed
	default:
		return v
	}
}
