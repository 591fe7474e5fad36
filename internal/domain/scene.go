package domain

// Scene 是脚本服务产出的一个镜头（旁白 + 英文检索关键词 + 预估时长）。
type Scene struct {
	Number    int    `json:"scene_number"`
	Voiceover string `json:"voiceover"`
	Keyword   string `json:"keyword"`
	Duration  int    `json:"duration"` // 秒
}

type VoiceSettings struct {
	VoiceSpeed string `json:"voice_speed"` // 例如 "+10%"
}

// Script 对应 <path>/scenes.json。
type Script struct {
	Topic         string        `json:"topic,omitempty"`
	Scenes        []Scene       `json:"scenes"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}
