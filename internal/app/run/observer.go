package run

import (
	"time"

	"github.com/John-Robertt/tubeflow/internal/config"
	"github.com/John-Robertt/tubeflow/internal/domain"
)

// Observer 用于把“运行进度/阶段/镜头结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件都在调用 ExecuteWithObserver 的 goroutine 上发出；CLI 自己的 ticker 仍需要加锁。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnSceneDone 在某个镜头得到最终状态时调用（apply 模式下包含下载结果）。
	OnSceneDone(idx, total int, res domain.SceneResult, dur time.Duration)
}
