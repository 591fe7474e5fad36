package provider

import (
	"fmt"
	"strings"
)

// Registry 是 provider 的只读注册表。
// 注册顺序同时是调用顺序与 priority 决胜顺序；name 按小写去重。
type Registry struct {
	order  []string
	byName map[string]Provider
}

func NewRegistry(providers ...Provider) (Registry, error) {
	byName := make(map[string]Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, p := range providers {
		if p == nil {
			return Registry{}, fmt.Errorf("provider 不能为空")
		}
		name := normName(p.Name())
		if name == "" {
			return Registry{}, fmt.Errorf("provider.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 provider：%q", name)
		}
		byName[name] = p
		order = append(order, name)
	}
	return Registry{order: order, byName: byName}, nil
}

// All 按注册顺序返回全部 provider。
func (r Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Names 按注册顺序返回 provider name（小写）。
func (r Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r Registry) Len() int { return len(r.order) }

func normName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
