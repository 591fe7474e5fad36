package resolve

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/tubeflow/internal/domain"
)

const (
	TieBreakRandom   = "random"
	TieBreakPriority = "priority"
)

// Picker 在同一级 breadcrumb 下多个被接受的候选之间做选择。
// cands 至少有 1 个元素，顺序与 provider 调用顺序一致。
type Picker interface {
	Pick(cands []domain.Candidate) domain.Candidate
}

// RandomPicker 均匀随机选择；每个 provider 最多贡献一个候选，所以各 provider 机会均等。
type RandomPicker struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomPicker(seed int64) *RandomPicker {
	return &RandomPicker{rnd: rand.New(rand.NewSource(seed))}
}

func (p *RandomPicker) Pick(cands []domain.Candidate) domain.Candidate {
	if len(cands) == 1 {
		return cands[0]
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return cands[p.rnd.Intn(len(cands))]
}

// PriorityPicker 按固定的 provider 顺序选择（排在前面的优先）。
// 不在 Order 里的来源排在最后；同优先级取先出现的。
type PriorityPicker struct {
	Order []string
}

func (p PriorityPicker) Pick(cands []domain.Candidate) domain.Candidate {
	best, bestRank := 0, p.rank(cands[0].Source)
	for i := 1; i < len(cands); i++ {
		if r := p.rank(cands[i].Source); r < bestRank {
			best, bestRank = i, r
		}
	}
	return cands[best]
}

func (p PriorityPicker) rank(source string) int {
	for i, name := range p.Order {
		if strings.EqualFold(name, source) {
			return i
		}
	}
	return len(p.Order)
}

// NewPicker 按 tie_break 配置构造 Picker；空串等同 random。
func NewPicker(policy string, order []string) (Picker, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", TieBreakRandom:
		return NewRandomPicker(time.Now().UnixNano()), nil
	case TieBreakPriority:
		return PriorityPicker{Order: append([]string(nil), order...)}, nil
	default:
		return nil, fmt.Errorf("tie_break 只能是 random 或 priority，实际是 %q", policy)
	}
}
