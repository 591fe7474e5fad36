package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/John-Robertt/tubeflow/internal/domain"
)

const DefaultModel = "gemini-2.0-flash"

// TextModel 是脚本生成依赖的最小模型能力：给定系统指令与用户输入，返回 JSON 文本。
type TextModel interface {
	GenerateJSON(ctx context.Context, system, prompt string, schema *genai.Schema) (string, error)
}

// Gemini 通过 Gemini API 实现 TextModel。
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("缺少 GOOGLE_API_KEY")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini client 失败：%w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) GenerateJSON(ctx context.Context, system, prompt string, schema *genai.Schema) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
		Temperature:       genai.Ptr[float32](0.7),
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

const systemInstruction = `You are a director of short vertical videos.
Split the video into 3-5 short scenes.
For each scene write a voiceover of at most 20 words and an English stock-footage
search keyword of 2-3 specific words, most important noun first.
Return only JSON matching the schema.`

// sceneSchema 约束模型输出为 {"scenes":[{scene_number, voiceover, keyword, duration}]}。
var sceneSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"scenes": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"scene_number": {Type: genai.TypeInteger},
					"voiceover":    {Type: genai.TypeString},
					"keyword":      {Type: genai.TypeString},
					"duration":     {Type: genai.TypeInteger},
				},
				Required: []string{"scene_number", "voiceover", "keyword", "duration"},
			},
		},
	},
	Required: []string{"scenes"},
}

// Generate 为 topic 生成镜头脚本；vibe 可为空。
func Generate(ctx context.Context, m TextModel, topic, vibe string) (domain.Script, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return domain.Script{}, errors.New("topic 不能为空")
	}
	prompt := "TOPIC: " + topic + "\nLENGTH: 30-60 seconds."
	if v := strings.TrimSpace(vibe); v != "" {
		prompt += "\nVIBE: " + v
	}

	text, err := m.GenerateJSON(ctx, systemInstruction, prompt, sceneSchema)
	if err != nil {
		return domain.Script{}, fmt.Errorf("生成脚本失败：%w", err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Script{}, errors.New("模型返回了空响应")
	}

	s, err := ParseScenes([]byte(text))
	if err != nil {
		return domain.Script{}, err
	}
	s.Topic = topic
	if s.VoiceSettings.VoiceSpeed == "" {
		s.VoiceSettings.VoiceSpeed = "+0%"
	}
	return s, nil
}
