package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/fsx"
)

// Store 提供 <path>/cache/ 下的文件缓存读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string // <path>（项目根目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// ResponsePath 返回 provider 原始响应缓存的绝对路径。
// 查询文本大小写不敏感（素材站检索本身不区分大小写），文件名取其 sha1。
func (s Store) ResponsePath(provider string, o domain.Orientation, query string) (string, error) {
	p, err := cleanProvider(provider)
	if err != nil {
		return "", err
	}
	if o != domain.Portrait && o != domain.Landscape {
		return "", fmt.Errorf("非法 orientation：%q", o)
	}
	return filepath.Join(s.Root, "cache", "providers", p, string(o), queryKey(query)+".body"), nil
}

func (s Store) ReadResponse(provider string, o domain.Orientation, query string) ([]byte, bool, error) {
	path, err := s.ResponsePath(provider, o, query)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WriteResponse(provider string, o domain.Orientation, query string, body []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.ResponsePath(provider, o, query)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), body)
}

// ReportPath 是 apply 模式下 report.json 的固定位置。
func (s Store) ReportPath() string {
	return filepath.Join(s.Root, "cache", "report.json")
}

// ReadReport 读取上一次 apply 留下的 report；不存在不算错误。
func (s Store) ReadReport() ([]byte, bool, error) {
	b, err := os.ReadFile(s.ReportPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WriteReport(b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomicReplace(filepath.Join(s.Root, "cache"), "report.json", b)
}

func queryKey(q string) string {
	q = strings.ToLower(strings.Join(strings.Fields(q), " "))
	sum := sha1.Sum([]byte(q))
	return hex.EncodeToString(sum[:])
}

var providerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanProvider(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("provider 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !providerNameRE.MatchString(p) {
		return "", fmt.Errorf("非法 provider：%q", p)
	}
	return p, nil
}
