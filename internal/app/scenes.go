package app

import (
	"sort"

	"github.com/John-Robertt/tubeflow/internal/domain"
)

// OrderScenes 把脚本里的镜头整理为确定的执行顺序。
//
// - 按 scene_number 稳定升序；scene_number<=0 的镜头保持原相对顺序排在最后
// - scene_number>0 且重复：第一次出现的保留，其余记为 invalid（duplicate_number）
func OrderScenes(scenes []domain.Scene) (ordered []domain.Scene, invalid []domain.InvalidScene) {
	seen := make(map[int]bool, len(scenes))
	ordered = make([]domain.Scene, 0, len(scenes))
	for _, s := range scenes {
		if s.Number > 0 {
			if seen[s.Number] {
				invalid = append(invalid, domain.InvalidScene{Scene: s, Reason: "duplicate_number"})
				continue
			}
			seen[s.Number] = true
		}
		ordered = append(ordered, s)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Number, ordered[j].Number
		if a <= 0 {
			return false
		}
		if b <= 0 {
			return true
		}
		return a < b
	})
	return ordered, invalid
}
