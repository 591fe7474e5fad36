package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/John-Robertt/tubeflow/internal/domain"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 tubeflow.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	FileName = "tubeflow.json"

	DefaultOrientation    = domain.Portrait
	DefaultTieBreak       = "random"
	DefaultConcurrency    = 4
	DefaultTimeoutSeconds = 10
	DefaultMinWidth       = 720
	DefaultPerPage        = 10
	DefaultScenesFile     = "scenes.json"
)

// DefaultProviders 是 providers 的最终默认值（也是调用顺序与 priority 决胜顺序）。
var DefaultProviders = []string{"pexels", "pixabay"}

// 环境变量（也可写在 .env 里）。ELEVENLABS_API_KEY 缺失时 apply 不生成旁白音频。
const (
	EnvPexelsKey     = "PEXELS_API_KEY"
	EnvPixabayKey    = "PIXABAY_API_KEY"
	EnvGoogleKey     = "GOOGLE_API_KEY"
	EnvElevenLabsKey = "ELEVENLABS_API_KEY"
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Orientation    string
	OrientationSet bool

	Apply    bool
	ApplySet bool

	Providers    []string
	ProvidersSet bool

	TieBreak    string
	TieBreakSet bool
}

// FileConfig 对应 tubeflow.json 的解析结构。
type FileConfig struct {
	Path              string       `json:"path"`
	Orientation       string       `json:"orientation"`
	Apply             *bool        `json:"apply"`
	Providers         []string     `json:"providers"`
	TieBreak          string       `json:"tie_break"`
	ParallelProviders bool         `json:"parallel_providers"`
	Concurrency       int          `json:"concurrency"`
	Proxy             *ProxyConfig `json:"proxy"`
	MediaProxy        bool         `json:"media_proxy"`
	TimeoutSeconds    int          `json:"timeout_seconds"`
	MinWidth          *int         `json:"min_width"`
	PerPage           int          `json:"per_page"`
	ScenesFile        string       `json:"scenes_file"`
	MixkitBaseURL     string       `json:"mixkit_base_url"`
	TTS               *TTSConfig   `json:"tts"`
	Log               *LogConfig   `json:"log"`
}

// TTSConfig 对应 tubeflow.json 的 tts 字段；全部可选。
type TTSConfig struct {
	VoiceID string `json:"voice_id"`
	ModelID string `json:"model_id"`
	BaseURL string `json:"base_url"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Keys 是从环境变量 / .env 读取的凭据；永远不从 tubeflow.json 读取。
type Keys struct {
	Pexels  string
	Pixabay    string
	Google     string
	ElevenLabs string
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string

	Orientation domain.Orientation
	Apply       bool

	// Providers 只包含凭据齐全的 provider，顺序即调用顺序。
	Providers []string
	// Dropped 是配置了但缺少凭据的 provider（上层记 warn 日志）。
	Dropped  []string
	TieBreak string

	ParallelProviders bool
	Concurrency       int
	ProxyURL          string
	MediaProxy        bool
	Timeout           time.Duration
	MinWidth          int
	PerPage           int
	ScenesFile        string
	MixkitBaseURL     string

	TTSVoiceID string
	TTSModelID string
	TTSBaseURL string

	LogLevel string
	LogFile  string

	Keys Keys
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/tubeflow.json（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/tubeflow.json（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path / orientation / apply / providers / tie_break：CLI > config > 默认
// - 其他字段：仅由 config 控制（CLI 不暴露）
// - 凭据：真实环境变量 > <path>/.env > <cwd>/.env
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/tubeflow.json。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(cwdAbs, absPath, cli, fc, cfgPath)
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(cwdAbs, absPath, cli, fc, cfgPath)
}

// RequireProviders 在需要检索素材的命令里调用：没有任何可用 provider 时返回 config_invalid。
func (c EffectiveConfig) RequireProviders() error {
	if len(c.Providers) > 0 {
		return nil
	}
	err := errors.New("没有可用的 provider（检查 providers 与 API key）")
	if len(c.Dropped) > 0 {
		err = fmt.Errorf("没有可用的 provider：%s 缺少 API key", strings.Join(c.Dropped, ", "))
	}
	return &Error{Code: ErrCodeInvalid, Path: filepath.Join(c.Path, FileName), Err: err}
}

func merge(cwdAbs, absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	// orientation：CLI > config > 默认
	orientText := string(DefaultOrientation)
	if cli.OrientationSet {
		orientText = cli.Orientation
	} else if strings.TrimSpace(fc.Orientation) != "" {
		orientText = fc.Orientation
	}
	orientation, err := domain.ParseOrientation(orientText)
	if err != nil {
		return invalid("%v", err)
	}

	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	providers := DefaultProviders
	if cli.ProvidersSet {
		providers = cli.Providers
	} else if len(fc.Providers) > 0 {
		providers = fc.Providers
	}
	providers, err = normProviders(providers)
	if err != nil {
		return invalid("%v", err)
	}

	tieBreak := DefaultTieBreak
	if cli.TieBreakSet {
		tieBreak = cli.TieBreak
	} else if strings.TrimSpace(fc.TieBreak) != "" {
		tieBreak = fc.TieBreak
	}
	tieBreak = strings.ToLower(strings.TrimSpace(tieBreak))
	if tieBreak != "random" && tieBreak != "priority" {
		return invalid("tie_break 只能是 random 或 priority，实际是 %q", tieBreak)
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return invalid("proxy.url 无效：%w", err)
		}
	}
	if fc.MediaProxy && proxyURL == "" {
		return invalid("media_proxy=true 但 proxy.url 为空")
	}

	mixkitBaseURL := strings.TrimSpace(fc.MixkitBaseURL)
	if mixkitBaseURL != "" {
		u, err := url.Parse(mixkitBaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid("mixkit_base_url 必须是 http/https 绝对地址：%q", mixkitBaseURL)
		}
	}

	var ttsCfg TTSConfig
	if fc.TTS != nil {
		ttsCfg = TTSConfig{
			VoiceID: strings.TrimSpace(fc.TTS.VoiceID),
			ModelID: strings.TrimSpace(fc.TTS.ModelID),
			BaseURL: strings.TrimSpace(fc.TTS.BaseURL),
		}
	}
	if ttsCfg.BaseURL != "" {
		u, err := url.Parse(ttsCfg.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid("tts.base_url 必须是 http/https 绝对地址：%q", ttsCfg.BaseURL)
		}
	}

	scenesFile := strings.TrimSpace(fc.ScenesFile)
	if scenesFile == "" {
		scenesFile = DefaultScenesFile
	}
	if scenesFile != filepath.Base(scenesFile) || scenesFile == "." || scenesFile == ".." {
		return invalid("scenes_file 只能是文件名：%q", scenesFile)
	}

	minWidth := DefaultMinWidth
	if fc.MinWidth != nil {
		minWidth = *fc.MinWidth
	}
	if minWidth < 0 {
		return invalid("min_width 不能为负数：%d", minWidth)
	}

	var logLevel, logFile string
	if fc.Log != nil {
		logLevel = strings.TrimSpace(fc.Log.Level)
		logFile = strings.TrimSpace(fc.Log.File)
		if logFile != "" {
			logFile = absCleanFrom(absPath, logFile)
		}
	}

	keys := loadKeys(cwdAbs, absPath)
	usable, dropped := filterByKeys(providers, keys)

	return EffectiveConfig{
		Path:              absPath,
		Orientation:       orientation,
		Apply:             apply,
		Providers:         usable,
		Dropped:           dropped,
		TieBreak:          tieBreak,
		ParallelProviders: fc.ParallelProviders,
		Concurrency:       clamp(fc.Concurrency, DefaultConcurrency, 1, 16),
		ProxyURL:          proxyURL,
		MediaProxy:        fc.MediaProxy,
		Timeout:           time.Duration(clamp(fc.TimeoutSeconds, DefaultTimeoutSeconds, 1, 60)) * time.Second,
		MinWidth:          minWidth,
		PerPage:           clamp(fc.PerPage, DefaultPerPage, 3, 80),
		ScenesFile:        scenesFile,
		MixkitBaseURL:     mixkitBaseURL,
		TTSVoiceID:        ttsCfg.VoiceID,
		TTSModelID:        ttsCfg.ModelID,
		TTSBaseURL:        ttsCfg.BaseURL,
		LogLevel:          logLevel,
		LogFile:           logFile,
		Keys:              keys,
	}, nil
}

// clamp：0 表示未配置（取默认值）；超出范围截断。
func clamp(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normProviders(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		switch p {
		case "pexels", "pixabay", "mixkit":
		case "":
			return nil, errors.New("provider 不能为空")
		default:
			return nil, fmt.Errorf("provider 只能是 pexels、pixabay 或 mixkit，实际是 %q", p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("providers 不能为空")
	}
	return out, nil
}

func filterByKeys(providers []string, k Keys) (usable, dropped []string) {
	for _, p := range providers {
		ok := true
		switch p {
		case "pexels":
			ok = k.Pexels != ""
		case "pixabay":
			ok = k.Pixabay != ""
		}
		if ok {
			usable = append(usable, p)
		} else {
			dropped = append(dropped, p)
		}
	}
	return usable, dropped
}

// loadKeys 读取凭据。.env 只用 godotenv.Read 解析，不修改进程环境。
func loadKeys(cwdAbs, absPath string) Keys {
	cwdEnv := readDotEnv(filepath.Join(cwdAbs, ".env"))
	pathEnv := readDotEnv(filepath.Join(absPath, ".env"))

	get := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		if v := strings.TrimSpace(pathEnv[key]); v != "" {
			return v
		}
		return strings.TrimSpace(cwdEnv[key])
	}
	return Keys{
		Pexels:     get(EnvPexelsKey),
		Pixabay:    get(EnvPixabayKey),
		Google:     get(EnvGoogleKey),
		ElevenLabs: get(EnvElevenLabsKey),
	}
}

func readDotEnv(path string) map[string]string {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	m, err := godotenv.Read(path)
	if err != nil {
		return nil
	}
	return m
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
