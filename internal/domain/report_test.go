package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Path:       "/abs/path",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []SceneResult{
			{SceneNumber: 2, Status: StatusSkipped},
			{SceneNumber: 0, Status: StatusFailed}, // config 等合成项
			{SceneNumber: 1, Status: StatusResolved},
			{SceneNumber: 3, Status: StatusNotFound},
		},
	}

	r.Finalize()

	got := []int{r.Items[0].SceneNumber, r.Items[1].SceneNumber, r.Items[2].SceneNumber, r.Items[3].SceneNumber}
	if got[0] != 1 || got[1] != 2 || got[2] != 3 || got[3] != 0 {
		t.Fatalf("items 排序不符合契约：%v", got)
	}
	if r.Summary.Resolved != 1 || r.Summary.Skipped != 1 || r.Summary.Failed != 1 || r.Summary.NotFound != 1 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	// nil attempts 必须输出为 []，而不是 null。
	if bytes.Contains(b, []byte("\"attempts\":null")) {
		t.Fatalf("attempts 不应输出 null：%s", string(b))
	}
	if r.Items[0].Attempts != nil {
		t.Fatalf("MarshalJSON 不应改写调用方的 Items")
	}
}

func TestExclusionSet_NilSafeAndTrimmed(t *testing.T) {
	var nilSet *ExclusionSet
	if nilSet.Has("https://x.test/a.mp4") || nilSet.Len() != 0 {
		t.Fatalf("nil ExclusionSet 应视为空集")
	}

	s := NewExclusionSet(" https://x.test/a.mp4 ", "")
	if !s.Has("https://x.test/a.mp4") {
		t.Fatalf("期望命中 a.mp4")
	}
	if s.Len() != 1 {
		t.Fatalf("空串不应进入集合，Len=%d", s.Len())
	}
}

func TestCandidate_MetadataText(t *testing.T) {
	c := Candidate{Tags: "penguin, snow", PageURL: "https://x.test/v/1", ID: "42"}
	if got := c.MetadataText(); got != "penguin, snow https://x.test/v/1 42" {
		t.Fatalf("MetadataText 不符合预期：%q", got)
	}
	if got := (Candidate{DownloadURL: "https://x.test/a.mp4"}).MetadataText(); got != "" {
		t.Fatalf("无元数据时应返回空串，实际 %q", got)
	}
}

func TestParseOrientation(t *testing.T) {
	if o, err := ParseOrientation(" Portrait "); err != nil || o != Portrait {
		t.Fatalf("期望 portrait，实际 %q err=%v", o, err)
	}
	if _, err := ParseOrientation("square"); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}
