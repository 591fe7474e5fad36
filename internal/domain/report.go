package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusResolved = "resolved"
	StatusSkipped  = "skipped"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

const (
	ErrCodeNoVisualFound     = "no_visual_found"
	ErrCodeDownloadFailed    = "download_failed"
	ErrCodeInvalidScene      = "invalid_scene"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeFetchFailed       = "fetch_failed"
	ErrCodeParseFailed       = "parse_failed"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID       string `json:"run_id"`
	Path        string `json:"path"`
	Orientation string `json:"orientation"`
	DryRun      bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []SceneResult `json:"items"`
}

type ReportSummary struct {
	Resolved int `json:"resolved"`
	Skipped  int `json:"skipped"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
}

type SceneResult struct {
	SceneNumber int    `json:"scene_number"`
	Keyword     string `json:"keyword"`
	Clip        string `json:"clip"` // 相对 <path> 的片段路径

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Source      string     `json:"source"`
	MatchLabel  MatchLabel `json:"match_label"`
	UsedQuery   string     `json:"used_query"`
	PageURL     string     `json:"page_url"`
	PreviewURL  string     `json:"preview_url"`
	DownloadURL string     `json:"download_url"`

	Voice      string `json:"voice,omitempty"` // 相对 <path> 的旁白音频路径
	VoiceError string `json:"voice_error,omitempty"`

	Attempts []ProviderAttempt `json:"attempts"`
}

// ProviderAttempt 是一次 (query, provider) 调用的可读轨迹。
type ProviderAttempt struct {
	Query     string `json:"query"`
	Provider  string `json:"provider"`
	Stage     string `json:"stage"`
	Cached    bool   `json:"cached,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 scene_number 升序；scene_number<=0 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].SceneNumber
		b := r.Items[j].SceneNumber
		if a <= 0 {
			return false
		}
		if b <= 0 {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusResolved:
			s.Resolved++
		case StatusSkipped:
			s.Skipped++
		case StatusNotFound:
			s.NotFound++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性：nil 切片输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	// 复制一份，避免改写调用方的 Items。
	a.Items = append(make([]SceneResult, 0, len(r.Items)), r.Items...)
	for i := range a.Items {
		if a.Items[i].Attempts == nil {
			a.Items[i].Attempts = []ProviderAttempt{}
		}
	}
	return json.Marshal(a)
}
