package domain

import "strings"

// ExclusionSet 是同一个视频内已经用过的 download URL 集合。
//
// 所有权属于调用方：解析引擎与 provider 只读，每次成功解析后由调用方 Add。
// 不是并发安全的；同一集合上的解析必须串行。
type ExclusionSet struct {
	urls map[string]struct{}
}

func NewExclusionSet(urls ...string) *ExclusionSet {
	s := &ExclusionSet{urls: make(map[string]struct{}, len(urls))}
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Has 对 nil 集合安全（视为空集）。
func (s *ExclusionSet) Has(u string) bool {
	if s == nil || s.urls == nil {
		return false
	}
	_, ok := s.urls[strings.TrimSpace(u)]
	return ok
}

func (s *ExclusionSet) Add(u string) {
	u = strings.TrimSpace(u)
	if u == "" {
		return
	}
	if s.urls == nil {
		s.urls = make(map[string]struct{})
	}
	s.urls[u] = struct{}{}
}

func (s *ExclusionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.urls)
}
