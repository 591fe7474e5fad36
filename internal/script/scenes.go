package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/fsx"
)

// ParseScenes 解析 scenes.json。
//
// 兼容两种形态：
// - 完整脚本对象：{"topic":..., "scenes":[...], "voice_settings":{...}}
// - 裸数组：[{"scene_number":1, ...}, ...]
//
// 所有镜头都没有 scene_number 时按出现顺序从 1 开始编号。
func ParseScenes(b []byte) (domain.Script, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return domain.Script{}, errors.New("scenes 为空")
	}

	var s domain.Script
	switch b[0] {
	case '[':
		if err := json.Unmarshal(b, &s.Scenes); err != nil {
			return domain.Script{}, fmt.Errorf("scenes 数组解析失败：%w", err)
		}
	case '{':
		if err := json.Unmarshal(b, &s); err != nil {
			return domain.Script{}, fmt.Errorf("scenes 对象解析失败：%w", err)
		}
	default:
		return domain.Script{}, errors.New("scenes 必须是 JSON 对象或数组")
	}
	if len(s.Scenes) == 0 {
		return domain.Script{}, errors.New("scenes 不能为空")
	}

	numbered := false
	for _, sc := range s.Scenes {
		if sc.Number != 0 {
			numbered = true
			break
		}
	}
	for i := range s.Scenes {
		if !numbered {
			s.Scenes[i].Number = i + 1
		}
		s.Scenes[i].Keyword = strings.TrimSpace(s.Scenes[i].Keyword)
		s.Scenes[i].Voiceover = strings.TrimSpace(s.Scenes[i].Voiceover)
	}
	return s, nil
}

// Load 读取并解析 <path>/<name>。
func Load(path, name string) (domain.Script, error) {
	b, err := os.ReadFile(filepath.Join(path, name))
	if err != nil {
		return domain.Script{}, err
	}
	return ParseScenes(b)
}

// Save 把脚本原子写入 <path>/<name>（覆盖旧文件）。
func Save(path, name string, s domain.Script) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(path, name, b)
}
