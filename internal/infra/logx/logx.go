package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultLevel = "warn"

// Config 对应配置文件里的 log 段。
type Config struct {
	Level string // debug / info / warn / error；空串取 DefaultLevel
	File  string // 非空时额外写一份 JSON 日志（按大小滚动）
}

// New 构造 logger：控制台输出到 console（通常是 stderr，stdout 留给 JSON report），
// 可选的文件输出由 lumberjack 负责滚动。
func New(cfg Config, console io.Writer) (*zap.Logger, error) {
	lvlText := strings.ToLower(strings.TrimSpace(cfg.Level))
	if lvlText == "" {
		lvlText = DefaultLevel
	}
	level, err := zapcore.ParseLevel(lvlText)
	if err != nil {
		return nil, fmt.Errorf("非法 log.level：%q", cfg.Level)
	}
	if console == nil {
		console = os.Stderr
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level),
	}

	if file := strings.TrimSpace(cfg.File); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败：%w", err)
		}
		w := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    20, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
